package api

import (
	"fmt"
	"net/http"

	"github.com/rentalhq/backoffice/api/apicommon"
	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/errors"
	"github.com/rentalhq/backoffice/payments"
	"github.com/rentalhq/backoffice/reports"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.vocdoni.io/dvote/log"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// bookingFilterFromRequest reads the status, source, customer, search, from
// and to query parameters.
func bookingFilterFromRequest(r *http.Request) (db.BookingFilter, error) {
	q := r.URL.Query()
	f := db.BookingFilter{
		Status: db.BookingStatus(q.Get("status")),
		Source: db.Source(q.Get("source")),
		Search: q.Get("search"),
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, fmt.Errorf("invalid status %q", f.Status)
	}
	if v := q.Get("customer"); v != "" {
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			return f, fmt.Errorf("invalid customer %q", v)
		}
		f.CustomerID = id
	}
	var err error
	if f.From, err = parseTimeParam(r, "from"); err != nil {
		return f, err
	}
	if f.To, err = parseTimeParam(r, "to"); err != nil {
		return f, err
	}
	return f, nil
}

// bookingInfo adds the customer, portal link and payment summary to b.
func (a *API) bookingInfo(b *db.Booking) (*apicommon.BookingInfo, error) {
	info := &apicommon.BookingInfo{
		Booking:   b,
		PortalURL: a.portalLink(b.PortalToken),
	}
	customer, err := a.db.Customer(b.CustomerID)
	switch err {
	case nil:
		info.Customer = customer
	case db.ErrNotFound:
		log.Warnw("booking without customer", "reference", b.Reference, "customer", b.CustomerID.Hex())
	default:
		return nil, err
	}
	summary, err := a.summaryOf(&db.Owner{Type: payments.OwnerBooking, Booking: b, Reference: b.Reference})
	if err != nil {
		return nil, err
	}
	info.Summary = summary
	return info, nil
}

// listBookingsHandler godoc
//
//	@Summary		List bookings
//	@Description	Get a page of bookings, newest pickups first
//	@Tags			bookings
//	@Produce		json
//	@Security		BearerAuth
//	@Param			status		query		string	false	"Booking status"
//	@Param			source		query		string	false	"Booking source (manual, vevs)"
//	@Param			customer	query		string	false	"Customer ID"
//	@Param			search		query		string	false	"Reference prefix"
//	@Param			from		query		string	false	"Pickup from (RFC 3339)"
//	@Param			to			query		string	false	"Pickup before (RFC 3339)"
//	@Param			page		query		integer	false	"Page number (default: 1)"
//	@Param			pageSize	query		integer	false	"Number of items per page (default: 20)"
//	@Success		200			{object}	apicommon.BookingsResponse
//	@Failure		400			{object}	errors.Error
//	@Failure		401			{object}	errors.Error
//	@Router			/admin/bookings [get]
func (a *API) listBookingsHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := bookingFilterFromRequest(r)
	if err != nil {
		errors.ErrMalformedURLParam.WithErr(err).Write(w)
		return
	}
	page, pageSize := apicommon.PaginationFromRequest(r)
	totalPages, bookings, err := a.db.Bookings(filter, page, pageSize)
	if err != nil {
		writeError(w, err, errors.ErrBookingNotFound)
		return
	}
	apicommon.HTTPWriteJSON(w, &apicommon.BookingsResponse{
		TotalPages:  totalPages,
		CurrentPage: page,
		Bookings:    bookings,
	})
}

// createBookingHandler godoc
//
//	@Summary		Create a booking
//	@Description	Create a booking for an existing or new customer. The booking gets a unique reference
//	@Description	and portal token.
//	@Tags			bookings
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		apicommon.BookingRequest	true	"Booking"
//	@Success		201		{object}	apicommon.BookingInfo
//	@Failure		400		{object}	errors.Error
//	@Failure		404		{object}	errors.Error
//	@Router			/admin/bookings [post]
func (a *API) createBookingHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeModel[apicommon.BookingRequest](a.validator, w, r)
	if !ok {
		return
	}
	customer, err := a.resolveCustomer(req.CustomerID, req.Customer)
	if err != nil {
		writeError(w, err, errors.ErrCustomerNotFound)
		return
	}
	b := &db.Booking{
		Source:         db.SourceManual,
		CustomerID:     customer.ID,
		Vehicle:        req.Vehicle,
		PickupAt:       req.PickupAt,
		ReturnAt:       req.ReturnAt,
		PickupLocation: req.PickupLocation,
		ReturnLocation: req.ReturnLocation,
		Currency:       req.Currency,
		TotalCents:     req.TotalCents,
		DepositCents:   req.DepositCents,
		BondCents:      req.BondCents,
		Notes:          req.Notes,
	}
	if err := a.db.CreateBooking(b); err != nil {
		writeError(w, err, errors.ErrBookingNotFound)
		return
	}
	log.Infow("booking created", "reference", b.Reference, "customer", customer.ID.Hex())
	info, err := a.bookingInfo(b)
	if err != nil {
		writeError(w, err, errors.ErrBookingNotFound)
		return
	}
	apicommon.HTTPWriteJSONStatus(w, http.StatusCreated, info)
}

// bookingHandler godoc
//
//	@Summary		Get a booking
//	@Description	Get a booking with its customer, portal link and payment summary
//	@Tags			bookings
//	@Produce		json
//	@Security		BearerAuth
//	@Param			reference	path		string	true	"Booking reference"
//	@Success		200			{object}	apicommon.BookingInfo
//	@Failure		404			{object}	errors.Error
//	@Router			/admin/bookings/{reference} [get]
func (a *API) bookingHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := a.ownerFromRequest(w, r, payments.OwnerBooking)
	if !ok {
		return
	}
	info, err := a.bookingInfo(owner.Booking)
	if err != nil {
		writeError(w, err, errors.ErrBookingNotFound)
		return
	}
	apicommon.HTTPWriteJSON(w, info)
}

// updateBookingHandler godoc
//
//	@Summary		Update a booking
//	@Description	Change the non-zero fields of a booking. Cancelling is done with DELETE.
//	@Tags			bookings
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			reference	path		string							true	"Booking reference"
//	@Param			request		body		apicommon.UpdateBookingRequest	true	"Fields to change"
//	@Success		200			{object}	apicommon.BookingInfo
//	@Failure		400			{object}	errors.Error
//	@Failure		404			{object}	errors.Error
//	@Router			/admin/bookings/{reference} [put]
func (a *API) updateBookingHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := a.ownerFromRequest(w, r, payments.OwnerBooking)
	if !ok {
		return
	}
	req, ok := decodeModel[apicommon.UpdateBookingRequest](a.validator, w, r)
	if !ok {
		return
	}
	current := owner.Booking
	if current.Status == db.StatusCancelled {
		errors.ErrInvalidData.Withf("booking %s is cancelled", current.Reference).Write(w)
		return
	}
	update := &db.Booking{
		Reference:      current.Reference,
		Vehicle:        req.Vehicle,
		PickupAt:       req.PickupAt,
		ReturnAt:       req.ReturnAt,
		PickupLocation: req.PickupLocation,
		ReturnLocation: req.ReturnLocation,
		Status:         req.Status,
		Currency:       req.Currency,
		TotalCents:     req.TotalCents,
		DepositCents:   req.DepositCents,
		BondCents:      req.BondCents,
		Notes:          req.Notes,
	}
	if req.CustomerID != "" {
		customer, err := a.resolveCustomer(req.CustomerID, nil)
		if err != nil {
			writeError(w, err, errors.ErrCustomerNotFound)
			return
		}
		update.CustomerID = customer.ID
	}
	pickup, ret := current.PickupAt, current.ReturnAt
	if !update.PickupAt.IsZero() {
		pickup = update.PickupAt
	}
	if !update.ReturnAt.IsZero() {
		ret = update.ReturnAt
	}
	if !ret.After(pickup) {
		errors.ErrInvalidData.Withf("return must be after pickup").Write(w)
		return
	}
	total, deposit := current.TotalCents, current.DepositCents
	if update.TotalCents > 0 {
		total = update.TotalCents
	}
	if update.DepositCents > 0 {
		deposit = update.DepositCents
	}
	if deposit > total {
		errors.ErrInvalidData.Withf("deposit cannot exceed the total").Write(w)
		return
	}
	if err := a.db.UpdateBooking(update); err != nil {
		writeError(w, err, errors.ErrBookingNotFound)
		return
	}
	b, err := a.db.Booking(current.Reference)
	if err != nil {
		writeError(w, err, errors.ErrBookingNotFound)
		return
	}
	info, err := a.bookingInfo(b)
	if err != nil {
		writeError(w, err, errors.ErrBookingNotFound)
		return
	}
	apicommon.HTTPWriteJSON(w, info)
}

// deleteBookingHandler godoc
//
//	@Summary		Cancel a booking
//	@Description	Cancel a booking and its open payment intents. Bookings with captured payments are
//	@Description	refused.
//	@Tags			bookings
//	@Security		BearerAuth
//	@Param			reference	path		string	true	"Booking reference"
//	@Success		200			{string}	string	"OK"
//	@Failure		404			{object}	errors.Error
//	@Failure		409			{object}	errors.Error
//	@Router			/admin/bookings/{reference} [delete]
func (a *API) deleteBookingHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := a.ownerFromRequest(w, r, payments.OwnerBooking)
	if !ok {
		return
	}
	if err := a.closeOwner(r, owner); err != nil {
		writeError(w, err, errors.ErrBookingNotFound)
		return
	}
	log.Infow("booking cancelled", "reference", owner.Reference)
	apicommon.HTTPWriteOK(w)
}

// closeOwner cancels owner through the payments service, or directly in the
// database when Stripe is not configured.
func (a *API) closeOwner(r *http.Request, owner *db.Owner) error {
	if a.payments != nil {
		return a.payments.CloseOwner(r.Context(), owner.Type, owner.Reference)
	}
	captured, err := a.db.HasCapturedPayments(owner.Type, owner.Reference)
	if err != nil {
		return err
	}
	if captured {
		return fmt.Errorf("%s has captured payments: %w", owner.Reference, db.ErrInUse)
	}
	return a.db.SetOwnerStatus(owner.Type, owner.Reference, db.StatusCancelled)
}

// bookingPaymentsHandler godoc
//
//	@Summary	List the payments of a booking
//	@Tags		payments
//	@Produce	json
//	@Security	BearerAuth
//	@Param		reference	path		string	true	"Booking reference"
//	@Success	200			{object}	apicommon.PaymentsResponse
//	@Failure	404			{object}	errors.Error
//	@Router		/admin/bookings/{reference}/payments [get]
func (a *API) bookingPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	a.ownerPayments(w, r, payments.OwnerBooking)
}

// addBookingDepositHandler godoc
//
//	@Summary		Record an offline deposit
//	@Description	Record a deposit received outside Stripe, e.g. cash or bank transfer
//	@Tags			payments
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			reference	path		string					true	"Booking reference"
//	@Param			request		body		apicommon.DepositRequest	true	"Deposit"
//	@Success		201			{object}	db.Deposit
//	@Failure		400			{object}	errors.Error
//	@Failure		404			{object}	errors.Error
//	@Router			/admin/bookings/{reference}/deposits [post]
func (a *API) addBookingDepositHandler(w http.ResponseWriter, r *http.Request) {
	a.addOwnerDeposit(w, r, payments.OwnerBooking)
}

// rotateBookingPortalTokenHandler godoc
//
//	@Summary		Rotate the portal token
//	@Description	Replace the portal token of a booking, invalidating the previous link
//	@Tags			bookings
//	@Produce		json
//	@Security		BearerAuth
//	@Param			reference	path		string	true	"Booking reference"
//	@Success		200			{object}	apicommon.PortalTokenResponse
//	@Failure		404			{object}	errors.Error
//	@Router			/admin/bookings/{reference}/portal-token [post]
func (a *API) rotateBookingPortalTokenHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := a.ownerFromRequest(w, r, payments.OwnerBooking)
	if !ok {
		return
	}
	token, err := a.db.RotatePortalToken(payments.OwnerBooking, owner.Reference)
	if err != nil {
		writeError(w, err, errors.ErrBookingNotFound)
		return
	}
	log.Infow("portal token rotated", "reference", owner.Reference)
	apicommon.HTTPWriteJSON(w, &apicommon.PortalTokenResponse{
		PortalToken: token,
		PortalURL:   a.portalLink(token),
	})
}

// exportBookingsHandler godoc
//
//	@Summary		Export bookings
//	@Description	Download the bookings matching the filters as a spreadsheet
//	@Tags			bookings
//	@Produce		application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
//	@Security		BearerAuth
//	@Param			status	query		string	false	"Booking status"
//	@Param			source	query		string	false	"Booking source"
//	@Param			from	query		string	false	"Pickup from (RFC 3339)"
//	@Param			to		query		string	false	"Pickup before (RFC 3339)"
//	@Success		200		{file}		binary
//	@Failure		400		{object}	errors.Error
//	@Router			/admin/bookings/export [get]
func (a *API) exportBookingsHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := bookingFilterFromRequest(r)
	if err != nil {
		errors.ErrMalformedURLParam.WithErr(err).Write(w)
		return
	}
	bookings, err := a.db.AllBookings(filter)
	if err != nil {
		writeError(w, err, errors.ErrBookingNotFound)
		return
	}
	ids := make([]primitive.ObjectID, 0, len(bookings))
	for i := range bookings {
		ids = append(ids, bookings[i].CustomerID)
	}
	customers, err := a.db.CustomersByIDs(ids)
	if err != nil {
		writeError(w, err, errors.ErrCustomerNotFound)
		return
	}
	data, err := reports.BookingsXLSX(bookings, customers, a.location)
	if err != nil {
		errors.ErrReportFailed.WithErr(err).Write(w)
		return
	}
	filename := fmt.Sprintf("bookings-%s.xlsx", a.now().In(a.location).Format("20060102"))
	apicommon.HTTPWriteFile(w, xlsxContentType, filename, data)
}
