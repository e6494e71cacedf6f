// Package api provides the HTTP API of the rental back office
//
//	@title						Rental Back Office API
//	@version					1.0
//	@description				Bookings, jobs and payments of the rental back office, its customer portal and feed webhooks.
//
//	@host						localhost:8080
//	@BasePath					/
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and the JWT token.
//
//	@tag.name					auth
//	@tag.description			Admin authentication
//
//	@tag.name					bookings
//	@tag.description			Booking management
//
//	@tag.name					jobs
//	@tag.description			Jobs and flows
//
//	@tag.name					payments
//	@tag.description			Payments, holds and payment requests
//
//	@tag.name					portal
//	@tag.description			Customer portal
//
//	@tag.name					imports
//	@tag.description			Feed imports and webhooks
package api

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/jwtauth/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rentalhq/backoffice/api/apicommon"
	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/importer"
	"github.com/rentalhq/backoffice/metrics"
	"github.com/rentalhq/backoffice/notifications"
	"github.com/rentalhq/backoffice/objectstorage"
	"github.com/rentalhq/backoffice/stripe"
	"github.com/rentalhq/backoffice/validator"
	"go.vocdoni.io/dvote/log"
)

const (
	jwtExpiration = 12 * time.Hour
	// defaultBrand names the business in customer notifications when neither
	// the config nor the flow set one.
	defaultBrand = "Rental"
)

// Config holds the dependencies of the API. Importer, ImportQueue,
// Notifications and ObjectStorage are optional, their routes answer with an
// error when missing.
type Config struct {
	Host   string
	Port   int
	Secret string
	DB     *db.MongoStorage
	// Payments is the Stripe reconciliation service
	Payments      *stripe.Service
	Importer      *importer.Importer
	ImportQueue   *importer.Queue
	Notifications *notifications.Queue
	ObjectStorage *objectstorage.Client
	// VEVSWebhookToken is the shared secret expected in X-Vevs-Token
	VEVSWebhookToken string
	// PortalURL is the base URL of the customer facing links
	PortalURL string
	Brand     string
	// Location is the time zone of the rental office, used in exports and
	// receipts
	Location *time.Location
}

// API type represents the API HTTP server with JWT authentication capabilities.
type API struct {
	db            *db.MongoStorage
	auth          *jwtauth.JWTAuth
	host          string
	port          int
	router        *chi.Mux
	validator     *validator.Validator
	payments      *stripe.Service
	importer      *importer.Importer
	importQueue   *importer.Queue
	notifications *notifications.Queue
	objectStorage *objectstorage.Client
	vevsToken     string
	portalURL     string
	brand         string
	location      *time.Location
	now           func() time.Time
	// sources with an import in progress
	runningImports sync.Map
}

// New creates a new API HTTP server. It does not start the server. Use Start() for that.
func New(conf *Config) *API {
	if conf == nil {
		return nil
	}
	brand := conf.Brand
	if brand == "" {
		brand = defaultBrand
	}
	loc := conf.Location
	if loc == nil {
		loc = time.UTC
	}
	a := &API{
		db:            conf.DB,
		auth:          jwtauth.New("HS256", []byte(conf.Secret), nil),
		host:          conf.Host,
		port:          conf.Port,
		validator:     validator.New(),
		payments:      conf.Payments,
		importer:      conf.Importer,
		importQueue:   conf.ImportQueue,
		notifications: conf.Notifications,
		objectStorage: conf.ObjectStorage,
		vevsToken:     conf.VEVSWebhookToken,
		portalURL:     strings.TrimRight(conf.PortalURL, "/"),
		brand:         brand,
		location:      loc,
		now:           time.Now,
	}
	a.router = a.initRouter()
	return a
}

// Router returns the HTTP handler of the API.
func (a *API) Router() http.Handler {
	return a.router
}

// Start starts the API HTTP server (non blocking).
func (a *API) Start() {
	go func() {
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", a.host, a.port), a.router); err != nil {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() *chi.Mux {
	// Create the router with a basic middleware stack
	r := chi.NewRouter()
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Throttle(100))
	r.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	r.Use(middleware.Timeout(45 * time.Second))
	r.Use(a.metricsMiddleware)

	// admin routes
	r.Group(func(r chi.Router) {
		// seek, verify and validate JWT tokens
		r.Use(jwtauth.Verifier(a.auth))
		// handle valid JWT tokens
		r.Use(a.authenticator)

		log.Infow("new route", "method", "POST", "path", authRefreshTokenEndpoint)
		r.Post(authRefreshTokenEndpoint, a.refreshTokenHandler)
		log.Infow("new route", "method", "GET", "path", adminMeEndpoint)
		r.Get(adminMeEndpoint, a.adminInfoHandler)

		// bookings
		log.Infow("new route", "method", "GET", "path", bookingsEndpoint)
		r.Get(bookingsEndpoint, a.listBookingsHandler)
		log.Infow("new route", "method", "POST", "path", bookingsEndpoint)
		r.With(a.validateInputModel(apicommon.BookingRequest{})).Post(bookingsEndpoint, a.createBookingHandler)
		log.Infow("new route", "method", "GET", "path", bookingsExportEndpoint)
		r.Get(bookingsExportEndpoint, a.exportBookingsHandler)
		log.Infow("new route", "method", "GET", "path", bookingEndpoint)
		r.Get(bookingEndpoint, a.bookingHandler)
		log.Infow("new route", "method", "PUT", "path", bookingEndpoint)
		r.With(a.validateInputModel(apicommon.UpdateBookingRequest{})).Put(bookingEndpoint, a.updateBookingHandler)
		log.Infow("new route", "method", "DELETE", "path", bookingEndpoint)
		r.Delete(bookingEndpoint, a.deleteBookingHandler)
		log.Infow("new route", "method", "GET", "path", bookingPaymentsEndpoint)
		r.Get(bookingPaymentsEndpoint, a.bookingPaymentsHandler)
		log.Infow("new route", "method", "POST", "path", bookingDepositsEndpoint)
		r.With(a.validateInputModel(apicommon.DepositRequest{})).Post(bookingDepositsEndpoint, a.addBookingDepositHandler)
		log.Infow("new route", "method", "POST", "path", bookingPortalTokenEndpoint)
		r.Post(bookingPortalTokenEndpoint, a.rotateBookingPortalTokenHandler)

		// customers
		log.Infow("new route", "method", "GET", "path", customersEndpoint)
		r.Get(customersEndpoint, a.listCustomersHandler)
		log.Infow("new route", "method", "POST", "path", customersEndpoint)
		r.With(a.validateInputModel(apicommon.CustomerRequest{})).Post(customersEndpoint, a.createCustomerHandler)
		log.Infow("new route", "method", "GET", "path", customerEndpoint)
		r.Get(customerEndpoint, a.customerHandler)
		log.Infow("new route", "method", "PUT", "path", customerEndpoint)
		r.With(a.validateInputModel(apicommon.UpdateCustomerRequest{})).Put(customerEndpoint, a.updateCustomerHandler)

		// flows
		log.Infow("new route", "method", "GET", "path", flowsEndpoint)
		r.Get(flowsEndpoint, a.listFlowsHandler)
		log.Infow("new route", "method", "POST", "path", flowsEndpoint)
		r.With(a.validateInputModel(apicommon.FlowRequest{})).Post(flowsEndpoint, a.createFlowHandler)
		log.Infow("new route", "method", "GET", "path", flowEndpoint)
		r.Get(flowEndpoint, a.flowHandler)
		log.Infow("new route", "method", "PUT", "path", flowEndpoint)
		r.With(a.validateInputModel(apicommon.FlowRequest{})).Put(flowEndpoint, a.updateFlowHandler)
		log.Infow("new route", "method", "DELETE", "path", flowEndpoint)
		r.Delete(flowEndpoint, a.deleteFlowHandler)

		// jobs
		log.Infow("new route", "method", "GET", "path", jobsEndpoint)
		r.Get(jobsEndpoint, a.listJobsHandler)
		log.Infow("new route", "method", "POST", "path", jobsEndpoint)
		r.With(a.validateInputModel(apicommon.JobRequest{})).Post(jobsEndpoint, a.createJobHandler)
		log.Infow("new route", "method", "GET", "path", jobEndpoint)
		r.Get(jobEndpoint, a.jobHandler)
		log.Infow("new route", "method", "PUT", "path", jobEndpoint)
		r.With(a.validateInputModel(apicommon.UpdateJobRequest{})).Put(jobEndpoint, a.updateJobHandler)
		log.Infow("new route", "method", "GET", "path", jobPaymentsEndpoint)
		r.Get(jobPaymentsEndpoint, a.jobPaymentsHandler)
		log.Infow("new route", "method", "POST", "path", jobDepositsEndpoint)
		r.With(a.validateInputModel(apicommon.DepositRequest{})).Post(jobDepositsEndpoint, a.addJobDepositHandler)

		// payments
		log.Infow("new route", "method", "POST", "path", paymentCaptureEndpoint)
		r.With(a.validateInputModel(apicommon.AmountRequest{})).Post(paymentCaptureEndpoint, a.capturePaymentHandler)
		log.Infow("new route", "method", "POST", "path", paymentReleaseEndpoint)
		r.Post(paymentReleaseEndpoint, a.releasePaymentHandler)
		log.Infow("new route", "method", "POST", "path", paymentRefundEndpoint)
		r.With(a.validateInputModel(apicommon.AmountRequest{})).Post(paymentRefundEndpoint, a.refundPaymentHandler)
		log.Infow("new route", "method", "POST", "path", paymentSyncEndpoint)
		r.Post(paymentSyncEndpoint, a.syncPaymentHandler)

		// payment requests
		log.Infow("new route", "method", "GET", "path", paymentRequestsEndpoint)
		r.Get(paymentRequestsEndpoint, a.listPaymentRequestsHandler)
		log.Infow("new route", "method", "POST", "path", paymentRequestsEndpoint)
		r.With(a.validateInputModel(apicommon.PaymentRequestRequest{})).Post(paymentRequestsEndpoint, a.createPaymentRequestHandler)
		log.Infow("new route", "method", "DELETE", "path", paymentRequestEndpoint)
		r.Delete(paymentRequestEndpoint, a.cancelPaymentRequestHandler)

		// imports
		log.Infow("new route", "method", "GET", "path", importsEndpoint)
		r.Get(importsEndpoint, a.listImportRunsHandler)
		log.Infow("new route", "method", "POST", "path", importVEVSEndpoint)
		r.With(a.validateInputModel(apicommon.VEVSImportRequest{})).Post(importVEVSEndpoint, a.importVEVSHandler)
		log.Infow("new route", "method", "POST", "path", importDreamDrivesEndpoint)
		r.With(a.validateInputModel(apicommon.DreamDrivesImportRequest{})).Post(importDreamDrivesEndpoint, a.importDreamDrivesHandler)
		log.Infow("new route", "method", "GET", "path", importRunEndpoint)
		r.Get(importRunEndpoint, a.importRunHandler)

		// documents
		log.Infow("new route", "method", "GET", "path", documentEndpoint)
		r.Get(documentEndpoint, a.downloadDocumentHandler)
		log.Infow("new route", "method", "DELETE", "path", documentEndpoint)
		r.Delete(documentEndpoint, a.deleteDocumentHandler)
	})

	// public routes
	r.Group(func(r chi.Router) {

		log.Infow("new route", "method", "GET", "path", pingEndpoint)
		r.Get(pingEndpoint, func(w http.ResponseWriter, _ *http.Request) {
			if _, err := w.Write([]byte(".")); err != nil {
				log.Warnw("failed to write ping response", "error", err)
			}
		})
		log.Infow("new route", "method", "GET", "path", metricsEndpoint)
		r.Handle(metricsEndpoint, promhttp.Handler())
		log.Infow("new route", "method", "POST", "path", authLoginEndpoint)
		r.With(a.validateInputModel(apicommon.LoginRequest{})).Post(authLoginEndpoint, a.authLoginHandler)

		// webhooks
		log.Infow("new route", "method", "POST", "path", stripeWebhookEndpoint)
		r.Post(stripeWebhookEndpoint, a.stripeWebhookHandler)
		log.Infow("new route", "method", "POST", "path", vevsWebhookEndpoint)
		r.Post(vevsWebhookEndpoint, a.vevsWebhookHandler)

		// customer portal
		log.Infow("new route", "method", "GET", "path", portalEndpoint)
		r.Get(portalEndpoint, a.portalHandler)
		log.Infow("new route", "method", "POST", "path", portalPaymentsEndpoint)
		r.With(a.validateInputModel(apicommon.PortalPaymentRequest{})).Post(portalPaymentsEndpoint, a.portalPaymentHandler)
		log.Infow("new route", "method", "POST", "path", portalBondEndpoint)
		r.Post(portalBondEndpoint, a.portalBondHandler)
		log.Infow("new route", "method", "GET", "path", portalReceiptEndpoint)
		r.Get(portalReceiptEndpoint, a.portalReceiptHandler)
		log.Infow("new route", "method", "POST", "path", portalDocumentsEndpoint)
		r.Post(portalDocumentsEndpoint, a.portalUploadHandler)

		// payment request links
		log.Infow("new route", "method", "GET", "path", payEndpoint)
		r.Get(payEndpoint, a.payInfoHandler)
		log.Infow("new route", "method", "POST", "path", payIntentEndpoint)
		r.Post(payIntentEndpoint, a.payIntentHandler)
	})
	metrics.Register()
	return r
}
