// Package customer normalizes the customer record carried through the
// voice-to-SOP pipeline.
package customer

import (
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/ttacon/libphonenumber"
)

// Info is the flat customer record. Absent fields are empty strings and are
// omitted when serialized.
type Info struct {
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
	Phone      string `json:"phone,omitempty"`
	ContactID  string `json:"contact_id,omitempty"`
	Company    string `json:"company,omitempty"`
	Department string `json:"department,omitempty"`
}

// DefaultName is used in document titles when the customer has no name.
const DefaultName = "Customer"

// NameOr returns the customer name or def when absent.
func (i Info) NameOr(def string) string {
	if i.Name == "" {
		return def
	}
	return i.Name
}

// IsZero reports whether no field is set.
func (i Info) IsZero() bool {
	return i == Info{}
}

// Map returns the record as a map containing only the present fields.
func (i Info) Map() map[string]string {
	m := make(map[string]string, 6)
	for _, f := range aliases {
		if v := f.get(&i); v != "" {
			m[f.key] = v
		}
	}
	return m
}

// field binds one Info field to the payload keys it may be read from.
// Paths are tried in order; the first non-empty string wins. A dotted path
// reads from a nested object.
type field struct {
	key   string
	paths []string
	get   func(*Info) string
	set   func(*Info, string)
}

var aliases = []field{
	{
		key:   "name",
		paths: []string{"name", "customerName", "customer_name", "contact.name"},
		get:   func(i *Info) string { return i.Name },
		set:   func(i *Info, v string) { i.Name = v },
	},
	{
		key:   "email",
		paths: []string{"email", "customerEmail", "customer_email", "contact.email"},
		get:   func(i *Info) string { return i.Email },
		set:   func(i *Info, v string) { i.Email = v },
	},
	{
		key:   "phone",
		paths: []string{"phone", "phoneNumber", "phone_number", "contact.phone"},
		get:   func(i *Info) string { return i.Phone },
		set:   func(i *Info, v string) { i.Phone = v },
	},
	{
		key:   "contact_id",
		paths: []string{"contactId", "contact_id", "contact.id"},
		get:   func(i *Info) string { return i.ContactID },
		set:   func(i *Info, v string) { i.ContactID = v },
	},
	{
		key:   "company",
		paths: []string{"company", "companyName", "company_name", "contact.company"},
		get:   func(i *Info) string { return i.Company },
		set:   func(i *Info, v string) { i.Company = v },
	},
	{
		key:   "department",
		paths: []string{"department", "contact.department"},
		get:   func(i *Info) string { return i.Department },
		set:   func(i *Info, v string) { i.Department = v },
	},
}

// Normalize builds an Info from an arbitrary payload object. Non-string and
// empty values are treated as absent. Parseable phone numbers are rewritten
// in E.164 form.
func Normalize(data map[string]any) Info {
	var info Info
	if data == nil {
		return info
	}
	for _, f := range aliases {
		for _, path := range f.paths {
			if v := lookup(data, path); v != "" {
				f.set(&info, v)
				break
			}
		}
	}
	info.Phone = NormalizePhone(info.Phone)
	return info
}

func lookup(data map[string]any, path string) string {
	parent, key, nested := strings.Cut(path, ".")
	if !nested {
		s, _ := data[path].(string)
		return strings.TrimSpace(s)
	}
	child, ok := data[parent].(map[string]any)
	if !ok {
		return ""
	}
	return lookup(child, key)
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func v() *validator.Validate {
	validateOnce.Do(func() { validate = validator.New() })
	return validate
}

// ValidEmail reports whether s is a syntactically valid address.
func ValidEmail(s string) bool {
	return s != "" && v().Var(s, "required,email") == nil
}

// Validate checks the formats of the fields that are present.
func (i Info) Validate() error {
	return v().Struct(i)
}

// DefaultRegion is used to parse phone numbers without a country prefix.
const DefaultRegion = "US"

// NormalizePhone returns phone in E.164 form. Numbers that cannot be parsed
// are returned unchanged so the CRM can still attempt delivery.
func NormalizePhone(phone string) string {
	if phone == "" {
		return ""
	}
	p, err := libphonenumber.Parse(phone, DefaultRegion)
	if err != nil || !libphonenumber.IsValidNumber(p) {
		return phone
	}
	return libphonenumber.Format(p, libphonenumber.E164)
}
