package api

const (
	// GET /ping to check the server is up
	pingEndpoint = "/ping"
	// GET /metrics to scrape the prometheus metrics
	metricsEndpoint = "/metrics"

	// auth routes

	// POST /auth/login to login and get a JWT token
	authLoginEndpoint = "/auth/login"
	// POST /auth/refresh to refresh the JWT token
	authRefreshTokenEndpoint = "/auth/refresh"
	// GET /admin/me to get the authenticated admin
	adminMeEndpoint = "/admin/me"

	// webhook routes

	// POST /webhooks/stripe to receive Stripe events
	stripeWebhookEndpoint = "/webhooks/stripe"
	// POST /webhooks/vevs to receive VEVS reservations
	vevsWebhookEndpoint = "/webhooks/vevs"

	// portal routes

	// GET /portal/{token} to get the customer view of a booking or job
	portalEndpoint = "/portal/{token}"
	// POST /portal/{token}/payments to get the intent of a deposit or balance payment
	portalPaymentsEndpoint = "/portal/{token}/payments"
	// POST /portal/{token}/bond to get the intent of the bond hold
	portalBondEndpoint = "/portal/{token}/bond"
	// GET /portal/{token}/receipt to download the PDF receipt
	portalReceiptEndpoint = "/portal/{token}/receipt"
	// POST /portal/{token}/documents to upload a document
	portalDocumentsEndpoint = "/portal/{token}/documents"

	// payment request routes

	// GET /pay/{token} to get a payment request
	payEndpoint = "/pay/{token}"
	// POST /pay/{token}/intent to get the intent of a payment request
	payIntentEndpoint = "/pay/{token}/intent"

	// booking routes

	// GET /admin/bookings to list bookings, POST to create one
	bookingsEndpoint = "/admin/bookings"
	// GET /admin/bookings/export to download the bookings as xlsx
	bookingsExportEndpoint = "/admin/bookings/export"
	// GET, PUT, DELETE /admin/bookings/{reference}
	bookingEndpoint = "/admin/bookings/{reference}"
	// GET /admin/bookings/{reference}/payments to list the payments of a booking
	bookingPaymentsEndpoint = "/admin/bookings/{reference}/payments"
	// POST /admin/bookings/{reference}/deposits to record an offline deposit
	bookingDepositsEndpoint = "/admin/bookings/{reference}/deposits"
	// POST /admin/bookings/{reference}/portal-token to rotate the portal token
	bookingPortalTokenEndpoint = "/admin/bookings/{reference}/portal-token"

	// customer routes

	// GET /admin/customers to list customers, POST to create one
	customersEndpoint = "/admin/customers"
	// GET, PUT /admin/customers/{id}
	customerEndpoint = "/admin/customers/{id}"

	// flow routes

	// GET /admin/flows to list flows, POST to create one
	flowsEndpoint = "/admin/flows"
	// GET, PUT, DELETE /admin/flows/{slug}
	flowEndpoint = "/admin/flows/{slug}"

	// job routes

	// GET /admin/jobs to list jobs, POST to create one
	jobsEndpoint = "/admin/jobs"
	// GET, PUT /admin/jobs/{reference}
	jobEndpoint = "/admin/jobs/{reference}"
	// GET /admin/jobs/{reference}/payments to list the payments of a job
	jobPaymentsEndpoint = "/admin/jobs/{reference}/payments"
	// POST /admin/jobs/{reference}/deposits to record an offline deposit
	jobDepositsEndpoint = "/admin/jobs/{reference}/deposits"

	// payment routes

	// POST /admin/payments/{id}/capture to capture a bond hold
	paymentCaptureEndpoint = "/admin/payments/{id}/capture"
	// POST /admin/payments/{id}/release to release a bond hold
	paymentReleaseEndpoint = "/admin/payments/{id}/release"
	// POST /admin/payments/{id}/refund to refund a payment
	paymentRefundEndpoint = "/admin/payments/{id}/refund"
	// POST /admin/payments/{id}/sync to refresh a payment from Stripe
	paymentSyncEndpoint = "/admin/payments/{id}/sync"

	// GET /admin/payment-requests to list payment requests, POST to create one
	paymentRequestsEndpoint = "/admin/payment-requests"
	// DELETE /admin/payment-requests/{token} to cancel a payment request
	paymentRequestEndpoint = "/admin/payment-requests/{token}"

	// import routes

	// GET /admin/imports to list import runs
	importsEndpoint = "/admin/imports"
	// POST /admin/imports/vevs to start a VEVS import
	importVEVSEndpoint = "/admin/imports/vevs"
	// POST /admin/imports/dreamdrives to start a Dream Drives import
	importDreamDrivesEndpoint = "/admin/imports/dreamdrives"
	// GET /admin/imports/{id} to get an import run
	importRunEndpoint = "/admin/imports/{id}"

	// document routes

	// GET, DELETE /admin/documents/{id}
	documentEndpoint = "/admin/documents/{id}"
)
