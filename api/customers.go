package api

import (
	"net/http"

	"github.com/rentalhq/backoffice/api/apicommon"
	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/errors"
	"github.com/rentalhq/backoffice/internal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// customerFromRequest builds a db.Customer from the request, normalizing its
// phone number.
func customerFromRequest(req *apicommon.CustomerRequest) (*db.Customer, error) {
	c := &db.Customer{
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Email:         req.Email,
		LicenceNumber: req.LicenceNumber,
	}
	if req.Phone != "" {
		phone, err := internal.SanitizeAndVerifyPhoneNumber(req.Phone, internal.DefaultPhoneCountry)
		if err != nil {
			return nil, err
		}
		c.Phone = phone
	}
	return c, nil
}

// resolveCustomer returns the customer named by id or, when id is empty,
// matches the described customer by email, or phone without email,
// creating it if needed. Errors are
// returned as API errors.
func (a *API) resolveCustomer(id string, req *apicommon.CustomerRequest) (*db.Customer, error) {
	if id != "" {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return nil, errors.ErrInvalidData.Withf("invalid customer id")
		}
		customer, err := a.db.Customer(oid)
		if err != nil {
			return nil, toAPIError(err, errors.ErrCustomerNotFound)
		}
		return customer, nil
	}
	if req == nil {
		return nil, errors.ErrInvalidData.Withf("customer is required")
	}
	c, err := customerFromRequest(req)
	if err != nil {
		return nil, errors.ErrInvalidData.WithErr(err)
	}
	customer, err := a.db.MatchOrCreateCustomer(c)
	if err != nil {
		return nil, toAPIError(err, errors.ErrCustomerNotFound)
	}
	return customer, nil
}

// listCustomersHandler godoc
//
//	@Summary		List customers
//	@Description	Get a page of customers, optionally filtered by a name or email search
//	@Tags			bookings
//	@Produce		json
//	@Security		BearerAuth
//	@Param			search		query		string	false	"Name or email prefix"
//	@Param			page		query		integer	false	"Page number (default: 1)"
//	@Param			pageSize	query		integer	false	"Number of items per page (default: 20)"
//	@Success		200			{object}	apicommon.CustomersResponse
//	@Failure		401			{object}	errors.Error
//	@Failure		500			{object}	errors.Error
//	@Router			/admin/customers [get]
func (a *API) listCustomersHandler(w http.ResponseWriter, r *http.Request) {
	page, pageSize := apicommon.PaginationFromRequest(r)
	totalPages, customers, err := a.db.Customers(r.URL.Query().Get("search"), page, pageSize)
	if err != nil {
		writeError(w, err, errors.ErrCustomerNotFound)
		return
	}
	apicommon.HTTPWriteJSON(w, &apicommon.CustomersResponse{
		TotalPages:  totalPages,
		CurrentPage: page,
		Customers:   customers,
	})
}

// createCustomerHandler godoc
//
//	@Summary		Create a customer
//	@Tags			bookings
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		apicommon.CustomerRequest	true	"Customer"
//	@Success		201		{object}	db.Customer
//	@Failure		400		{object}	errors.Error
//	@Failure		409		{object}	errors.Error
//	@Router			/admin/customers [post]
func (a *API) createCustomerHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeModel[apicommon.CustomerRequest](a.validator, w, r)
	if !ok {
		return
	}
	if req.Email != "" {
		if _, err := a.db.CustomerByEmail(req.Email); err == nil {
			errors.ErrDuplicateConflict.Withf("a customer with email %s already exists", req.Email).Write(w)
			return
		}
	}
	customer, err := customerFromRequest(req)
	if err != nil {
		errors.ErrInvalidData.WithErr(err).Write(w)
		return
	}
	if err := a.db.SetCustomer(customer); err != nil {
		writeError(w, err, errors.ErrCustomerNotFound)
		return
	}
	apicommon.HTTPWriteJSONStatus(w, http.StatusCreated, customer)
}

// customerHandler godoc
//
//	@Summary	Get a customer
//	@Tags		bookings
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Customer ID"
//	@Success	200	{object}	db.Customer
//	@Failure	400	{object}	errors.Error
//	@Failure	404	{object}	errors.Error
//	@Router		/admin/customers/{id} [get]
func (a *API) customerHandler(w http.ResponseWriter, r *http.Request) {
	id, err := apicommon.ObjectIDFromRequest(r, "id")
	if err != nil {
		errors.ErrMalformedURLParam.Withf("invalid customer id").Write(w)
		return
	}
	customer, err := a.db.Customer(id)
	if err != nil {
		writeError(w, err, errors.ErrCustomerNotFound)
		return
	}
	apicommon.HTTPWriteJSON(w, customer)
}

// updateCustomerHandler godoc
//
//	@Summary		Update a customer
//	@Description	Change the non-empty fields of a customer
//	@Tags			bookings
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string							true	"Customer ID"
//	@Param			request	body		apicommon.UpdateCustomerRequest	true	"Fields to change"
//	@Success		200		{object}	db.Customer
//	@Failure		400		{object}	errors.Error
//	@Failure		404		{object}	errors.Error
//	@Router			/admin/customers/{id} [put]
func (a *API) updateCustomerHandler(w http.ResponseWriter, r *http.Request) {
	id, err := apicommon.ObjectIDFromRequest(r, "id")
	if err != nil {
		errors.ErrMalformedURLParam.Withf("invalid customer id").Write(w)
		return
	}
	req, ok := decodeModel[apicommon.UpdateCustomerRequest](a.validator, w, r)
	if !ok {
		return
	}
	if _, err := a.db.Customer(id); err != nil {
		writeError(w, err, errors.ErrCustomerNotFound)
		return
	}
	update, err := customerFromRequest((*apicommon.CustomerRequest)(req))
	if err != nil {
		errors.ErrInvalidData.WithErr(err).Write(w)
		return
	}
	update.ID = id
	if err := a.db.SetCustomer(update); err != nil {
		writeError(w, err, errors.ErrCustomerNotFound)
		return
	}
	customer, err := a.db.Customer(id)
	if err != nil {
		writeError(w, err, errors.ErrCustomerNotFound)
		return
	}
	apicommon.HTTPWriteJSON(w, customer)
}
