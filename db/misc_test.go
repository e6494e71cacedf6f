package db

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/rentalhq/backoffice/payments"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestUsers(t *testing.T) {
	c := qt.New(t)
	c.Cleanup(func() { c.Assert(testDB.Reset(), qt.IsNil) })

	user := &User{Email: " Ops@Rental.test ", Password: testPassword, Name: "Ops"}
	c.Assert(testDB.SetUser(user), qt.IsNil)
	got, err := testDB.UserByEmail(testUserEmail)
	c.Assert(err, qt.IsNil)
	c.Assert(got.ID, qt.Equals, user.ID)

	c.Assert(testDB.SetUser(&User{Email: testUserEmail, Password: testPassword}), qt.ErrorIs, ErrAlreadyExists)
	c.Assert(testDB.SetUser(&User{Email: "nope", Password: testPassword}), qt.Equals, ErrInvalidData)
	c.Assert(testDB.SetUserPassword(user.ID, testPassword+"x"), qt.IsNil)
	c.Assert(testDB.SetUserPassword(primitive.NewObjectID(), testPassword), qt.Equals, ErrNotFound)
}

func TestCustomers(t *testing.T) {
	c := qt.New(t)
	c.Cleanup(func() { c.Assert(testDB.Reset(), qt.IsNil) })

	customer := &Customer{FirstName: "Lee", LastName: "Nguyen", Email: testEmail, Phone: testPhone}
	c.Assert(testDB.SetCustomer(customer), qt.IsNil)

	matched, err := testDB.MatchOrCreateCustomer(&Customer{FirstName: "L", Email: "DRIVER@example.com"})
	c.Assert(err, qt.IsNil)
	c.Assert(matched.ID, qt.Equals, customer.ID)

	created, err := testDB.MatchOrCreateCustomer(&Customer{FirstName: "Kim", Email: "kim@example.com"})
	c.Assert(err, qt.IsNil)
	c.Assert(created.ID, qt.Not(qt.Equals), customer.ID)

	c.Assert(testDB.SetCustomer(&Customer{ID: customer.ID, LicenceNumber: "VIC99"}), qt.IsNil)
	got, err := testDB.Customer(customer.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.LicenceNumber, qt.Equals, "VIC99")
	c.Assert(got.Phone, qt.Equals, testPhone)
	c.Assert(got.FullName(), qt.Equals, "Lee Nguyen")

	_, list, err := testDB.Customers("nguy", 1, 10)
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.HasLen, 1)

	byID, err := testDB.CustomersByIDs([]primitive.ObjectID{customer.ID, created.ID})
	c.Assert(err, qt.IsNil)
	c.Assert(byID, qt.HasLen, 2)

	c.Assert(testDB.SetCustomer(&Customer{FirstName: "Dup", Email: testEmail}), qt.ErrorIs, ErrAlreadyExists)
}

func TestMatchCustomerByPhone(t *testing.T) {
	c := qt.New(t)
	c.Cleanup(func() { c.Assert(testDB.Reset(), qt.IsNil) })

	first, err := testDB.MatchOrCreateCustomer(&Customer{FirstName: "Jo", Phone: testPhone})
	c.Assert(err, qt.IsNil)
	again, err := testDB.MatchOrCreateCustomer(&Customer{FirstName: "Jo", Phone: testPhone})
	c.Assert(err, qt.IsNil)
	c.Assert(again.ID, qt.Equals, first.ID)

	// an email wins over the phone
	other, err := testDB.MatchOrCreateCustomer(&Customer{FirstName: "Jo", Email: "jo@example.com", Phone: testPhone})
	c.Assert(err, qt.IsNil)
	c.Assert(other.ID, qt.Not(qt.Equals), first.ID)

	byPhone, err := testDB.CustomerByPhone(testPhone)
	c.Assert(err, qt.IsNil)
	c.Assert(byPhone.ID, qt.Equals, first.ID)
	_, err = testDB.CustomerByPhone("")
	c.Assert(err, qt.Equals, ErrNotFound)

	// without email nor phone every call creates a customer
	a, err := testDB.MatchOrCreateCustomer(&Customer{FirstName: "Anon"})
	c.Assert(err, qt.IsNil)
	b, err := testDB.MatchOrCreateCustomer(&Customer{FirstName: "Anon"})
	c.Assert(err, qt.IsNil)
	c.Assert(a.ID, qt.Not(qt.Equals), b.ID)
}

func TestImportRunsAndDocuments(t *testing.T) {
	c := qt.New(t)
	c.Cleanup(func() { c.Assert(testDB.Reset(), qt.IsNil) })

	run, err := testDB.CreateImportRun(SourceVEVS)
	c.Assert(err, qt.IsNil)
	run.Total, run.Created, run.Errors = 3, 2, []string{"row 3: missing email"}
	run.CompletedAt = time.Now()
	c.Assert(testDB.SetImportRun(run), qt.IsNil)
	got, err := testDB.ImportRun(run.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Created, qt.Equals, 2)
	c.Assert(got.Errors, qt.HasLen, 1)
	_, runs, err := testDB.ImportRuns(SourceVEVS, 1, 10)
	c.Assert(err, qt.IsNil)
	c.Assert(runs, qt.HasLen, 1)

	doc := &Document{ID: primitive.NewObjectID(), OwnerType: payments.OwnerBooking, OwnerRef: "BK-12345678", Key: "booking/BK-12345678/x.pdf", ContentType: "application/pdf", Size: 10}
	c.Assert(testDB.SetDocument(doc), qt.IsNil)
	docs, err := testDB.DocumentsByOwner(payments.OwnerBooking, "BK-12345678")
	c.Assert(err, qt.IsNil)
	c.Assert(docs, qt.HasLen, 1)
	c.Assert(testDB.DelDocument(doc.ID), qt.IsNil)
	c.Assert(testDB.DelDocument(doc.ID), qt.Equals, ErrNotFound)
}

func TestDynamicUpdateDocument(t *testing.T) {
	c := qt.New(t)
	doc, err := dynamicUpdateDocument(&Customer{ID: primitive.NewObjectID(), FirstName: "A", Email: "a@b.co"}, []string{"phone"})
	c.Assert(err, qt.IsNil)
	set := doc["$set"].(bson.M)
	c.Assert(set["firstName"], qt.Equals, "A")
	c.Assert(set["email"], qt.Equals, "a@b.co")
	c.Assert(set["phone"], qt.Equals, "")
	_, hasID := set["_id"]
	c.Assert(hasID, qt.IsFalse)
	_, hasLast := set["lastName"]
	c.Assert(hasLast, qt.IsFalse)

	_, err = dynamicUpdateDocument(42, nil)
	c.Assert(err, qt.IsNotNil)
}
