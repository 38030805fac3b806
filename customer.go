// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	kitprom "github.com/go-kit/kit/metrics/prometheus"
	"github.com/google/uuid"
	stdprom "github.com/prometheus/client_golang/prometheus"
)

var (
	customersCreated = kitprom.NewCounterFrom(stdprom.CounterOpts{
		Name: "customers_created",
		Help: "Count of customer records created",
	}, nil)
)

const (
	defaultNationality             = "South African"
	defaultPreferredLanguage       = "english"
	defaultCustomerType            = "residential"
	defaultStatus                  = "active"
	defaultCommunicationPreference = "sms"

	dateLayout = "2006-01-02"

	// maxNumberAttempts bounds how often create regenerates
	// customer_number/account_number after a collision.
	maxNumberAttempts = 5
)

var (
	customerTypes            = []string{"residential", "business", "government", "education"}
	customerStatuses         = []string{"active", "suspended", "terminated"}
	communicationPreferences = []string{"sms", "email", "whatsapp", "phone"}
)

// Customer is a served party, optionally linked to the Account it belongs to.
type Customer struct {
	ID             string  `json:"id"`
	UserID         *string `json:"user_id"`
	CustomerNumber string  `json:"customer_number"`
	AccountNumber  string  `json:"account_number"`

	Title          *string `json:"title"`
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	IDNumber       *string `json:"id_number"`
	PassportNumber *string `json:"passport_number"`
	DateOfBirth    *string `json:"date_of_birth"`
	Nationality    string  `json:"nationality"`

	Email          *string `json:"email"`
	Phone          *string `json:"phone"`
	Mobile         string  `json:"mobile"`
	WhatsappNumber *string `json:"whatsapp_number"`

	AddressLine1 *string `json:"address_line1"`
	AddressLine2 *string `json:"address_line2"`
	Suburb       *string `json:"suburb"`
	City         string  `json:"city"`
	Province     string  `json:"province"`
	PostalCode   string  `json:"postal_code"`
	ComplexName  *string `json:"complex_name"`
	UnitNumber   *string `json:"unit_number"`
	StreetNumber *string `json:"street_number"`
	StreetName   *string `json:"street_name"`

	CompanyName               *string `json:"company_name"`
	CompanyRegistrationNumber *string `json:"company_registration_number"`
	TaxNumber                 *string `json:"tax_number"`
	VatNumber                 *string `json:"vat_number"`

	CustomerType      string   `json:"customer_type"`
	Status            string   `json:"status"`
	CreditLimit       *float64 `json:"credit_limit"`
	PaymentMethod     *string  `json:"payment_method"`
	BankingDetails    *string  `json:"banking_details"`
	ContractStartDate *string  `json:"contract_start_date"`
	ContractEndDate   *string  `json:"contract_end_date"`

	PreferredLanguage       string `json:"preferred_language"`
	CommunicationPreference string `json:"communication_preference"`
	MarketingConsent        bool   `json:"marketing_consent"`

	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	CreatedBy      *string   `json:"created_by"`
	LastModifiedBy *string   `json:"last_modified_by"`
}

// customerFields is the body of customer create and update requests. Every
// field is optional on the wire; nil or blank means "not provided".
type customerFields struct {
	UserID *string `json:"user_id"`

	Title          *string `json:"title"`
	FirstName      *string `json:"first_name"`
	LastName       *string `json:"last_name"`
	IDNumber       *string `json:"id_number"`
	PassportNumber *string `json:"passport_number"`
	DateOfBirth    *string `json:"date_of_birth"`
	Nationality    *string `json:"nationality"`

	Email          *string `json:"email"`
	Phone          *string `json:"phone"`
	Mobile         *string `json:"mobile"`
	WhatsappNumber *string `json:"whatsapp_number"`

	AddressLine1 *string `json:"address_line1"`
	AddressLine2 *string `json:"address_line2"`
	Suburb       *string `json:"suburb"`
	City         *string `json:"city"`
	Province     *string `json:"province"`
	PostalCode   *string `json:"postal_code"`
	ComplexName  *string `json:"complex_name"`
	UnitNumber   *string `json:"unit_number"`
	StreetNumber *string `json:"street_number"`
	StreetName   *string `json:"street_name"`

	CompanyName               *string `json:"company_name"`
	CompanyRegistrationNumber *string `json:"company_registration_number"`
	TaxNumber                 *string `json:"tax_number"`
	VatNumber                 *string `json:"vat_number"`

	CustomerType      *string  `json:"customer_type"`
	Status            *string  `json:"status"`
	CreditLimit       *float64 `json:"credit_limit"`
	PaymentMethod     *string  `json:"payment_method"`
	BankingDetails    *string  `json:"banking_details"`
	ContractStartDate *string  `json:"contract_start_date"`
	ContractEndDate   *string  `json:"contract_end_date"`

	PreferredLanguage       *string `json:"preferred_language"`
	CommunicationPreference *string `json:"communication_preference"`
	MarketingConsent        *bool   `json:"marketing_consent"`
}

// normalize trims every text field and drops the blank ones so that only
// provided values remain. Required fields that were sent blank are
// reported separately so update can reject them.
func (f *customerFields) normalize() (blankRequired []string) {
	required := map[string]**string{
		"first_name":  &f.FirstName,
		"last_name":   &f.LastName,
		"mobile":      &f.Mobile,
		"city":        &f.City,
		"province":    &f.Province,
		"postal_code": &f.PostalCode,
	}
	for _, name := range requiredCustomerFields {
		p := required[name]
		if *p != nil && present(*p) == nil {
			blankRequired = append(blankRequired, name)
		}
		*p = present(*p)
	}
	for _, p := range []**string{
		&f.UserID, &f.Title, &f.IDNumber, &f.PassportNumber, &f.DateOfBirth, &f.Nationality,
		&f.Email, &f.Phone, &f.WhatsappNumber,
		&f.AddressLine1, &f.AddressLine2, &f.Suburb, &f.ComplexName, &f.UnitNumber, &f.StreetNumber, &f.StreetName,
		&f.CompanyName, &f.CompanyRegistrationNumber, &f.TaxNumber, &f.VatNumber,
		&f.CustomerType, &f.Status, &f.PaymentMethod, &f.BankingDetails, &f.ContractStartDate, &f.ContractEndDate,
		&f.PreferredLanguage, &f.CommunicationPreference,
	} {
		*p = present(*p)
	}
	if f.CustomerType != nil {
		v := strings.ToLower(*f.CustomerType)
		f.CustomerType = &v
	}
	if f.Status != nil {
		v := strings.ToLower(*f.Status)
		f.Status = &v
	}
	if f.CommunicationPreference != nil {
		v := strings.ToLower(*f.CommunicationPreference)
		f.CommunicationPreference = &v
	}
	return blankRequired
}

var requiredCustomerFields = []string{"first_name", "last_name", "mobile", "city", "province", "postal_code"}

// validate checks the provided (normalized) fields. Presence of required
// fields is checked by the caller since update doesn't need them.
func (f *customerFields) validate() error {
	if err := oneOf("customer_type", f.CustomerType, customerTypes); err != nil {
		return err
	}
	if err := oneOf("status", f.Status, customerStatuses); err != nil {
		return err
	}
	if err := oneOf("communication_preference", f.CommunicationPreference, communicationPreferences); err != nil {
		return err
	}
	dates := []struct {
		name  string
		value *string
	}{
		{"date_of_birth", f.DateOfBirth},
		{"contract_start_date", f.ContractStartDate},
		{"contract_end_date", f.ContractEndDate},
	}
	for _, d := range dates {
		if d.value == nil {
			continue
		}
		if _, err := time.Parse(dateLayout, *d.value); err != nil {
			return fmt.Errorf("%w: %s must be YYYY-MM-DD", errValidation, d.name)
		}
	}
	if f.Email != nil {
		if err := checkEmail(*f.Email); err != nil {
			return err
		}
	}
	return nil
}

func oneOf(name string, value *string, allowed []string) error {
	if value == nil {
		return nil
	}
	for i := range allowed {
		if *value == allowed[i] {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be one of %s", errValidation, name, strings.Join(allowed, ", "))
}

// customerFilter narrows a customer listing. Zero values mean "no filter"
// for the strings and the defaults for Page and Limit.
type customerFilter struct {
	Search   string
	Status   string
	Province string
	Page     int
	Limit    int
}

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

func (f customerFilter) normalize() customerFilter {
	f.Search = strings.TrimSpace(f.Search)
	f.Status = strings.ToLower(strings.TrimSpace(f.Status))
	f.Province = strings.TrimSpace(f.Province)
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageLimit
	}
	if f.Limit > maxPageLimit {
		f.Limit = maxPageLimit
	}
	return f
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// where builds the predicate shared by the list and count queries.
func (f customerFilter) where() (string, []any) {
	var conds []string
	var args []any

	if f.Search != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(f.Search)) + "%"
		var ors []string
		for _, col := range []string{"first_name", "last_name", "email", "customer_number", "mobile"} {
			ors = append(ors, fmt.Sprintf(`LOWER(%s) LIKE ? ESCAPE '\'`, col))
			args = append(args, pattern)
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.Province != "" {
		conds = append(conds, "province = ?")
		args = append(args, f.Province)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type pageInfo struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func newPageInfo(page, limit, total int) pageInfo {
	return pageInfo{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: (total + limit - 1) / limit,
	}
}

var (
	errCustomerNotFound = fmt.Errorf("%w: customer not found", errNotFound)
	errUnknownUser      = fmt.Errorf("%w: user_id does not reference an account", errValidation)
)

type customerRepository interface {
	list(ctx context.Context, filter customerFilter) ([]*Customer, pageInfo, error)
	create(ctx context.Context, fields customerFields, actorID string) (*Customer, error)
	get(ctx context.Context, id string) (*Customer, error)
	update(ctx context.Context, id string, fields customerFields, actorID string) (*Customer, error)
	delete(ctx context.Context, id string) error
}

type sqlCustomerRepository struct {
	db     *database
	logger log.Logger
	now    func() time.Time

	customerNumber func() string
	accountNumber  func() string
}

func newCustomerRepository(logger log.Logger, db *database) *sqlCustomerRepository {
	return &sqlCustomerRepository{
		db:             db,
		logger:         logger,
		now:            time.Now,
		customerNumber: newCustomerNumber,
		accountNumber:  newAccountNumber,
	}
}

// newCustomerNumber returns "CUS-" followed by 10 upper-case hex characters.
func newCustomerNumber() string {
	id := uuid.New()
	return "CUS-" + strings.ToUpper(hex.EncodeToString(id[:5]))
}

// newAccountNumber returns 10 decimal digits.
func newAccountNumber() string {
	id := uuid.New()
	return fmt.Sprintf("%010d", binary.BigEndian.Uint64(id[8:])%10_000_000_000)
}

const customerColumns = `id, user_id, customer_number, account_number,
    title, first_name, last_name, id_number, passport_number, date_of_birth, nationality,
    email, phone, mobile, whatsapp_number,
    address_line1, address_line2, suburb, city, province, postal_code, complex_name, unit_number, street_number, street_name,
    company_name, company_registration_number, tax_number, vat_number,
    customer_type, status, credit_limit, payment_method, banking_details, contract_start_date, contract_end_date,
    preferred_language, communication_preference, marketing_consent,
    created_at, updated_at, created_by, last_modified_by`

// fields returns pointers to c's fields in customerColumns order.
func (c *Customer) fields() []any {
	return []any{
		&c.ID, &c.UserID, &c.CustomerNumber, &c.AccountNumber,
		&c.Title, &c.FirstName, &c.LastName, &c.IDNumber, &c.PassportNumber, &c.DateOfBirth, &c.Nationality,
		&c.Email, &c.Phone, &c.Mobile, &c.WhatsappNumber,
		&c.AddressLine1, &c.AddressLine2, &c.Suburb, &c.City, &c.Province, &c.PostalCode, &c.ComplexName, &c.UnitNumber, &c.StreetNumber, &c.StreetName,
		&c.CompanyName, &c.CompanyRegistrationNumber, &c.TaxNumber, &c.VatNumber,
		&c.CustomerType, &c.Status, &c.CreditLimit, &c.PaymentMethod, &c.BankingDetails, &c.ContractStartDate, &c.ContractEndDate,
		&c.PreferredLanguage, &c.CommunicationPreference, &c.MarketingConsent,
		&c.CreatedAt, &c.UpdatedAt, &c.CreatedBy, &c.LastModifiedBy,
	}
}

// values returns c's fields in customerColumns order as driver arguments.
func (c *Customer) values() []any {
	return []any{
		c.ID, c.UserID, c.CustomerNumber, c.AccountNumber,
		c.Title, c.FirstName, c.LastName, c.IDNumber, c.PassportNumber, c.DateOfBirth, c.Nationality,
		c.Email, c.Phone, c.Mobile, c.WhatsappNumber,
		c.AddressLine1, c.AddressLine2, c.Suburb, c.City, c.Province, c.PostalCode, c.ComplexName, c.UnitNumber, c.StreetNumber, c.StreetName,
		c.CompanyName, c.CompanyRegistrationNumber, c.TaxNumber, c.VatNumber,
		c.CustomerType, c.Status, c.CreditLimit, c.PaymentMethod, c.BankingDetails, c.ContractStartDate, c.ContractEndDate,
		c.PreferredLanguage, c.CommunicationPreference, c.MarketingConsent,
		c.CreatedAt, c.UpdatedAt, c.CreatedBy, c.LastModifiedBy,
	}
}

// mutableCustomerColumns pairs with customerFields.values for updates.
var mutableCustomerColumns = []string{
	"user_id",
	"title", "first_name", "last_name", "id_number", "passport_number", "date_of_birth", "nationality",
	"email", "phone", "mobile", "whatsapp_number",
	"address_line1", "address_line2", "suburb", "city", "province", "postal_code", "complex_name", "unit_number", "street_number", "street_name",
	"company_name", "company_registration_number", "tax_number", "vat_number",
	"customer_type", "status", "credit_limit", "payment_method", "banking_details", "contract_start_date", "contract_end_date",
	"preferred_language", "communication_preference", "marketing_consent",
}

func (f *customerFields) values() []any {
	return []any{
		f.UserID,
		f.Title, f.FirstName, f.LastName, f.IDNumber, f.PassportNumber, f.DateOfBirth, f.Nationality,
		f.Email, f.Phone, f.Mobile, f.WhatsappNumber,
		f.AddressLine1, f.AddressLine2, f.Suburb, f.City, f.Province, f.PostalCode, f.ComplexName, f.UnitNumber, f.StreetNumber, f.StreetName,
		f.CompanyName, f.CompanyRegistrationNumber, f.TaxNumber, f.VatNumber,
		f.CustomerType, f.Status, f.CreditLimit, f.PaymentMethod, f.BankingDetails, f.ContractStartDate, f.ContractEndDate,
		f.PreferredLanguage, f.CommunicationPreference, f.MarketingConsent,
	}
}

var customerUpdateSet = func() string {
	sets := make([]string, len(mutableCustomerColumns))
	for i, col := range mutableCustomerColumns {
		sets[i] = fmt.Sprintf("%s = COALESCE(?, %s)", col, col)
	}
	return strings.Join(sets, ", ")
}()

func scanCustomer(s scanner) (*Customer, error) {
	var c Customer
	if err := s.Scan(c.fields()...); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *sqlCustomerRepository) list(ctx context.Context, filter customerFilter) ([]*Customer, pageInfo, error) {
	filter = filter.normalize()
	where, args := filter.where()

	var total int
	if err := r.db.queryRow(ctx, `SELECT COUNT(*) FROM customers`+where, args...).Scan(&total); err != nil {
		return nil, pageInfo{}, fmt.Errorf("count customers: %w", err)
	}
	info := newPageInfo(filter.Page, filter.Limit, total)
	if filter.Page > info.TotalPages {
		// Past the last page. Page is unbounded so the offset could overflow.
		return []*Customer{}, info, nil
	}

	query := `SELECT ` + customerColumns + ` FROM customers` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := r.db.query(ctx, query, append(args, filter.Limit, (filter.Page-1)*filter.Limit)...)
	if err != nil {
		return nil, pageInfo{}, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	out := make([]*Customer, 0, filter.Limit)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, pageInfo{}, fmt.Errorf("scan customer: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, pageInfo{}, fmt.Errorf("list customers: %w", err)
	}
	return out, info, nil
}

func (r *sqlCustomerRepository) create(ctx context.Context, fields customerFields, actorID string) (*Customer, error) {
	fields.normalize()
	provided := map[string]*string{
		"first_name":  fields.FirstName,
		"last_name":   fields.LastName,
		"mobile":      fields.Mobile,
		"city":        fields.City,
		"province":    fields.Province,
		"postal_code": fields.PostalCode,
	}
	var missing []string
	for _, name := range requiredCustomerFields {
		if provided[name] == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required fields: %s", errValidation, strings.Join(missing, ", "))
	}
	if err := fields.validate(); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	c := &Customer{
		ID:     uuid.NewString(),
		UserID: fields.UserID,

		Title:          fields.Title,
		FirstName:      *fields.FirstName,
		LastName:       *fields.LastName,
		IDNumber:       fields.IDNumber,
		PassportNumber: fields.PassportNumber,
		DateOfBirth:    fields.DateOfBirth,
		Nationality:    orDefault(fields.Nationality, defaultNationality),

		Email:          fields.Email,
		Phone:          fields.Phone,
		Mobile:         *fields.Mobile,
		WhatsappNumber: fields.WhatsappNumber,

		AddressLine1: fields.AddressLine1,
		AddressLine2: fields.AddressLine2,
		Suburb:       fields.Suburb,
		City:         *fields.City,
		Province:     *fields.Province,
		PostalCode:   *fields.PostalCode,
		ComplexName:  fields.ComplexName,
		UnitNumber:   fields.UnitNumber,
		StreetNumber: fields.StreetNumber,
		StreetName:   fields.StreetName,

		CompanyName:               fields.CompanyName,
		CompanyRegistrationNumber: fields.CompanyRegistrationNumber,
		TaxNumber:                 fields.TaxNumber,
		VatNumber:                 fields.VatNumber,

		CustomerType:      orDefault(fields.CustomerType, defaultCustomerType),
		Status:            orDefault(fields.Status, defaultStatus),
		CreditLimit:       fields.CreditLimit,
		PaymentMethod:     fields.PaymentMethod,
		BankingDetails:    fields.BankingDetails,
		ContractStartDate: fields.ContractStartDate,
		ContractEndDate:   fields.ContractEndDate,

		PreferredLanguage:       orDefault(fields.PreferredLanguage, defaultPreferredLanguage),
		CommunicationPreference: orDefault(fields.CommunicationPreference, defaultCommunicationPreference),
		MarketingConsent:        fields.MarketingConsent != nil && *fields.MarketingConsent,

		CreatedAt: now,
		UpdatedAt: now,
	}
	if actorID != "" {
		c.CreatedBy = &actorID
		c.LastModifiedBy = &actorID
	}

	if err := r.insert(ctx, c); err != nil {
		return nil, err
	}
	customersCreated.Add(1)
	r.logger.Log("customers", "created", "id", c.ID, "customer_number", c.CustomerNumber, "actor", actorID)

	out, err := r.get(ctx, c.ID)
	if errors.Is(err, errNotFound) {
		return nil, fmt.Errorf("customer %s missing after insert", c.ID)
	}
	return out, err
}

// insert writes c with freshly generated business numbers, retrying with new
// ones when either collides with an existing record.
func (r *sqlCustomerRepository) insert(ctx context.Context, c *Customer) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(c.values())), ", ")
	query := `INSERT INTO customers (` + customerColumns + `) VALUES (` + placeholders + `)`

	for attempt := 1; ; attempt++ {
		c.CustomerNumber = r.customerNumber()
		c.AccountNumber = r.accountNumber()

		_, err := r.db.exec(ctx, query, c.values()...)
		if err == nil {
			return nil
		}
		if foreignKeyViolation(err) {
			return errUnknownUser
		}
		col, ok := uniqueViolation(err)
		if !ok {
			return fmt.Errorf("insert customer: %w", err)
		}
		switch col {
		case "customer_number", "account_number", "id":
			if attempt >= maxNumberAttempts {
				return fmt.Errorf("insert customer: generated numbers collided %d times: %w", attempt, err)
			}
			if col == "id" {
				c.ID = uuid.NewString()
			}
			r.logger.Log("customers", "regenerating numbers", "column", col, "attempt", attempt)
			continue
		}
		return conflictOn(col)
	}
}

func conflictOn(col string) error {
	if col == "" {
		return fmt.Errorf("%w: customer already exists", errConflict)
	}
	return fmt.Errorf("%w: customer with this %s already exists", errConflict, col)
}

func (r *sqlCustomerRepository) get(ctx context.Context, id string) (*Customer, error) {
	c, err := scanCustomer(r.db.queryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

func (r *sqlCustomerRepository) update(ctx context.Context, id string, fields customerFields, actorID string) (*Customer, error) {
	if blank := fields.normalize(); len(blank) > 0 {
		return nil, fmt.Errorf("%w: required fields cannot be empty: %s", errValidation, strings.Join(blank, ", "))
	}
	if err := fields.validate(); err != nil {
		return nil, err
	}

	var actor *string
	if actorID != "" {
		actor = &actorID
	}
	args := append(fields.values(), r.now().UTC(), actor, id)
	res, err := r.db.exec(ctx,
		`UPDATE customers SET `+customerUpdateSet+`, updated_at = ?, last_modified_by = COALESCE(?, last_modified_by) WHERE id = ?`,
		args...,
	)
	if err != nil {
		if foreignKeyViolation(err) {
			return nil, errUnknownUser
		}
		if col, ok := uniqueViolation(err); ok {
			return nil, conflictOn(col)
		}
		return nil, fmt.Errorf("update customer: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, errCustomerNotFound
	}
	return r.get(ctx, id)
}

func (r *sqlCustomerRepository) delete(ctx context.Context, id string) error {
	res, err := r.db.exec(ctx, `DELETE FROM customers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	if n == 0 {
		return errCustomerNotFound
	}
	r.logger.Log("customers", "deleted", "id", id)
	return nil
}

func orDefault(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}
