package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rentalhq/backoffice/api"
	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/importer"
	"github.com/rentalhq/backoffice/notifications"
	"github.com/rentalhq/backoffice/notifications/mailtemplates"
	"github.com/rentalhq/backoffice/notifications/smtp"
	"github.com/rentalhq/backoffice/notifications/twilio"
	"github.com/rentalhq/backoffice/objectstorage"
	"github.com/rentalhq/backoffice/stripe"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.vocdoni.io/dvote/log"
)

func main() {
	// define flags
	flag.StringP("host", "h", "0.0.0.0", "listen address")
	flag.IntP("port", "p", 8080, "listen port")
	flag.StringP("secret", "s", "", "API secret")
	flag.String("config", "", "optional configuration file")
	flag.String("logLevel", "info", "log level (debug, info, warn, error)")
	flag.String("mongo-url", "", "The URL of the MongoDB server")
	flag.String("mongo-db", "rental-backoffice", "The name of the MongoDB database")
	flag.String("portalUrl", "http://localhost:3000", "base URL of the customer portal links")
	flag.String("brand", "", "business name used in customer notifications")
	flag.String("timezone", "Australia/Sydney", "time zone of the rental office")
	// stripe
	flag.String("stripeApiSecret", "", "Stripe API secret")
	flag.String("stripeWebhookSecret", "", "Stripe webhook secret")
	flag.String("stripeCurrency", "aud", "currency of the Stripe payments")
	flag.String("stripeStatementDescriptor", "", "statement descriptor suffix of the charges")
	flag.String("redis-url", "", "Redis URL of the webhook event store, in memory when empty")
	// feeds
	flag.String("vevsUrl", "", "VEVS API base URL")
	flag.String("vevsApiKey", "", "VEVS API key")
	flag.String("vevsWebhookToken", "", "shared secret of the VEVS reservation webhook")
	flag.String("dreamDrivesUrl", "", "Dream Drives API base URL")
	flag.String("dreamDrivesToken", "", "Dream Drives API token")
	flag.Float64("feedRps", 2, "requests per second allowed to each feed")
	flag.Int("importQueueSize", 500, "capacity of the VEVS upsert queue")
	// notifications
	flag.String("emailFromAddress", "", "sender address of the emails")
	flag.String("emailFromName", "", "sender name of the emails")
	flag.String("smtpServer", "", "SMTP server")
	flag.Int("smtpPort", 587, "SMTP port")
	flag.String("smtpUsername", "", "SMTP username")
	flag.String("smtpPassword", "", "SMTP password")
	flag.String("twilioAccountSid", "", "Twilio account SID")
	flag.String("twilioAuthToken", "", "Twilio auth token")
	flag.String("twilioFromNumber", "", "Twilio sender number or messaging service SID")
	// documents
	flag.String("s3Bucket", "", "S3 bucket of the customer documents, in memory when empty")
	flag.String("s3Region", "ap-southeast-2", "S3 region")
	flag.String("s3Endpoint", "", "S3 compatible endpoint")
	flag.String("s3AccessKey", "", "S3 access key")
	flag.String("s3SecretKey", "", "S3 secret key")
	flag.Bool("s3PathStyle", false, "use path style S3 addressing")
	// parse flags
	flag.Parse()
	// initialize Viper
	viper.SetEnvPrefix("RENTAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := viper.BindPFlags(flag.CommandLine); err != nil {
		panic(err)
	}
	viper.AutomaticEnv()
	if file := viper.GetString("config"); file != "" {
		viper.SetConfigFile(file)
		if err := viper.ReadInConfig(); err != nil {
			panic(err)
		}
	}
	log.Init(viper.GetString("logLevel"), "stdout", nil)

	// read the configuration
	host := viper.GetString("host")
	port := viper.GetInt("port")
	secret := viper.GetString("secret")
	if secret == "" {
		log.Fatal("secret is required")
	}
	location, err := time.LoadLocation(viper.GetString("timezone"))
	if err != nil {
		log.Fatalf("invalid timezone: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// initialize the MongoDB database, pending migrations are applied on connect
	database, err := db.New(viper.GetString("mongo-url"), viper.GetString("mongo-db"))
	if err != nil {
		log.Fatalf("could not create the MongoDB database: %v", err)
	}
	defer database.Close()

	if err := mailtemplates.Load(); err != nil {
		log.Fatalf("could not load the mail templates: %v", err)
	}

	conf := &api.Config{
		Host:             host,
		Port:             port,
		Secret:           secret,
		DB:               database,
		VEVSWebhookToken: viper.GetString("vevsWebhookToken"),
		PortalURL:        viper.GetString("portalUrl"),
		Brand:            viper.GetString("brand"),
		Location:         location,
	}

	// stripe, optional
	var payments *stripe.Service
	if viper.GetString("stripeApiSecret") != "" {
		payments = newPaymentsService(ctx, database)
		conf.Payments = payments
	} else {
		log.Warn("stripe is not configured, online payments are disabled")
	}

	// feed importer and the VEVS upsert queue
	conf.Importer = newImporter(database, location)
	conf.ImportQueue = importer.NewQueue(conf.Importer, viper.GetInt("importQueueSize"), time.Second,
		importer.DefaultRetryPolicy)
	go conf.ImportQueue.Start(ctx)

	// notifications
	conf.Notifications = newNotificationsQueue()
	go conf.Notifications.Start(ctx)

	// customer documents
	conf.ObjectStorage = newObjectStorage(ctx, database)

	// create the local API server
	srv := api.New(conf)
	if payments != nil {
		payments.OnSettled(srv.ReceiptHook())
	}
	srv.Start()
	go expirePaymentRequests(ctx, database, 5*time.Minute)

	// wait forever, as the server is running in a goroutine
	log.Infow("server started", "host", host, "port", port)
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Infow("shutting down", "pendingImports", conf.ImportQueue.Len(),
		"pendingNotifications", conf.Notifications.Len())
}

func newPaymentsService(ctx context.Context, database *db.MongoStorage) *stripe.Service {
	config, err := stripe.NewConfig(viper.GetViper())
	if err != nil {
		log.Fatalf("invalid stripe configuration: %v", err)
	}
	var events stripe.EventStore
	if url := viper.GetString("redis-url"); url != "" {
		store, err := stripe.NewRedisEventStore(ctx, url, stripe.DefaultEventTTL)
		if err != nil {
			log.Fatalf("could not connect the event store: %v", err)
		}
		events = store
	} else {
		events = stripe.NewMemoryEventStore(stripe.DefaultEventTTL)
	}
	svc, err := stripe.NewService(config, stripe.NewClient(config), database, events)
	if err != nil {
		log.Fatalf("could not create the payments service: %v", err)
	}
	log.Infow("stripe configured", "currency", config.Currency)
	return svc
}

func newImporter(database *db.MongoStorage, location *time.Location) *importer.Importer {
	rps := viper.GetFloat64("feedRps")
	var vevs *importer.VEVSClient
	if url := viper.GetString("vevsUrl"); url != "" {
		client, err := importer.NewVEVSClient(importer.VEVSConfig{
			BaseURL:  url,
			APIKey:   viper.GetString("vevsApiKey"),
			Location: location,
			RPS:      rps,
			Retry:    importer.DefaultRetryPolicy,
		})
		if err != nil {
			log.Fatalf("could not create the VEVS client: %v", err)
		}
		vevs = client
	}
	var dreamDrives *importer.DreamDrivesClient
	if url := viper.GetString("dreamDrivesUrl"); url != "" {
		client, err := importer.NewDreamDrivesClient(importer.DreamDrivesConfig{
			BaseURL: url,
			Token:   viper.GetString("dreamDrivesToken"),
			RPS:     rps,
			Retry:   importer.DefaultRetryPolicy,
		})
		if err != nil {
			log.Fatalf("could not create the Dream Drives client: %v", err)
		}
		dreamDrives = client
	}
	return importer.New(database, vevs, dreamDrives, &importer.Mapper{
		Location:        location,
		DefaultCurrency: viper.GetString("stripeCurrency"),
	})
}

func newNotificationsQueue() *notifications.Queue {
	var mailSrv, smsSrv notifications.NotificationService
	if server := viper.GetString("smtpServer"); server != "" {
		email := new(smtp.Email)
		if err := email.New(&smtp.Config{
			FromName:     viper.GetString("emailFromName"),
			FromAddress:  viper.GetString("emailFromAddress"),
			SMTPServer:   server,
			SMTPPort:     viper.GetInt("smtpPort"),
			SMTPUsername: viper.GetString("smtpUsername"),
			SMTPPassword: viper.GetString("smtpPassword"),
		}); err != nil {
			log.Fatalf("could not create the mail service: %v", err)
		}
		mailSrv = email
	}
	if sid := viper.GetString("twilioAccountSid"); sid != "" {
		sms := new(twilio.SMS)
		if err := sms.New(&twilio.Config{
			AccountSid: sid,
			AuthToken:  viper.GetString("twilioAuthToken"),
			FromNumber: viper.GetString("twilioFromNumber"),
		}); err != nil {
			log.Fatalf("could not create the SMS service: %v", err)
		}
		smsSrv = sms
	}
	return notifications.NewQueue(0, 0, mailSrv, smsSrv)
}

func newObjectStorage(ctx context.Context, database *db.MongoStorage) *objectstorage.Client {
	var backend objectstorage.Backend
	if bucket := viper.GetString("s3Bucket"); bucket != "" {
		s3, err := objectstorage.NewS3(ctx, objectstorage.S3Config{
			Bucket:       bucket,
			Region:       viper.GetString("s3Region"),
			Endpoint:     viper.GetString("s3Endpoint"),
			AccessKey:    viper.GetString("s3AccessKey"),
			SecretKey:    viper.GetString("s3SecretKey"),
			UsePathStyle: viper.GetBool("s3PathStyle"),
		})
		if err != nil {
			log.Fatalf("could not create the S3 backend: %v", err)
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			log.Fatalf("could not create the bucket: %v", err)
		}
		backend = s3
	} else {
		log.Warn("no S3 bucket configured, documents are kept in memory")
		backend = objectstorage.NewMemory()
	}
	client, err := objectstorage.New(backend, database, objectstorage.Config{})
	if err != nil {
		log.Fatalf("could not create the object storage: %v", err)
	}
	return client
}

// expirePaymentRequests marks the overdue payment requests as expired every
// interval until ctx is canceled.
func expirePaymentRequests(ctx context.Context, database *db.MongoStorage, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := database.ExpirePaymentRequests(now)
			if err != nil {
				log.Warnw("could not expire payment requests", "error", err)
				continue
			}
			if n > 0 {
				log.Infow("payment requests expired", "count", n)
			}
		}
	}
}
