package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as plain JSON numbers, matching documents written by the web client.
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"

	PaymentCash    = "cash"
	PaymentBenefit = "benefit"

	RoleOwner    = "owner"
	RoleEmployee = "employee"

	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
	ClockLayout = "15:04"

	DefaultServiceDuration = 30
	DefaultOpenTime        = "10:00"
	DefaultCloseTime       = "22:00"
)

type Service struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Duration int             `json:"duration,omitempty"`
}

// Minutes is the booking length of the service; zero means the default slot length.
func (s Service) Minutes() int {
	if s.Duration <= 0 {
		return DefaultServiceDuration
	}
	return s.Duration
}

type Appointment struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Phone     string          `json:"phone"`
	Service   string          `json:"service"`
	Price     decimal.Decimal `json:"price"`
	StartTime time.Time       `json:"startTime"`
	EndTime   time.Time       `json:"endTime"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (a Appointment) IsPending() bool {
	return a.Status != StatusConfirmed
}

type Sale struct {
	ID            int64           `json:"id"`
	Time          string          `json:"time"`
	Date          string          `json:"date"`
	Role          string          `json:"role"`
	Total         decimal.Decimal `json:"total"`
	Items         string          `json:"items"`
	PaymentMethod string          `json:"paymentMethod,omitempty"`
}

type Expense struct {
	ID     int64           `json:"id"`
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

type FixedExpense struct {
	ID     int64           `json:"id"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

type Barber struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type Settings struct {
	OpenTime  string `json:"openTime"`
	CloseTime string `json:"closeTime"`
}

// WithDefaults fills missing opening hours with the shop defaults.
func (s Settings) WithDefaults() Settings {
	if s.OpenTime == "" {
		s.OpenTime = DefaultOpenTime
	}
	if s.CloseTime == "" {
		s.CloseTime = DefaultCloseTime
	}
	return s
}

// State is the full shop document exchanged by GET /api/data and POST /api/save.
type State struct {
	History       []Sale         `json:"history"`
	Expenses      []Expense      `json:"expenses"`
	FixedExpenses []FixedExpense `json:"fixedExpenses"`
	Services      []Service      `json:"services"`
	Barbers       []Barber       `json:"barbers"`
	Appointments  []Appointment  `json:"appointments"`
	Settings      Settings       `json:"settings"`
}

// Clone returns a deep copy so callers can mutate slices freely.
func (s State) Clone() State {
	return State{
		History:       append([]Sale(nil), s.History...),
		Expenses:      append([]Expense(nil), s.Expenses...),
		FixedExpenses: append([]FixedExpense(nil), s.FixedExpenses...),
		Services:      append([]Service(nil), s.Services...),
		Barbers:       append([]Barber(nil), s.Barbers...),
		Appointments:  append([]Appointment(nil), s.Appointments...),
		Settings:      s.Settings,
	}
}

// Normalized replaces nil collections with empty ones so the document always
// serialises every key as an array.
func (s State) Normalized() State {
	if s.History == nil {
		s.History = []Sale{}
	}
	if s.Expenses == nil {
		s.Expenses = []Expense{}
	}
	if s.FixedExpenses == nil {
		s.FixedExpenses = []FixedExpense{}
	}
	if s.Services == nil {
		s.Services = []Service{}
	}
	if s.Barbers == nil {
		s.Barbers = []Barber{}
	}
	if s.Appointments == nil {
		s.Appointments = []Appointment{}
	}
	s.Settings = s.Settings.WithDefaults()
	return s
}

// StatePatch carries only the collections a client chose to send; nil means untouched.
type StatePatch struct {
	History       *[]Sale         `json:"history,omitempty"`
	Expenses      *[]Expense      `json:"expenses,omitempty"`
	FixedExpenses *[]FixedExpense `json:"fixedExpenses,omitempty"`
	Services      *[]Service      `json:"services,omitempty"`
	Barbers       *[]Barber       `json:"barbers,omitempty"`
	Appointments  *[]Appointment  `json:"appointments,omitempty"`
	Settings      *Settings       `json:"settings,omitempty"`
}

func (p StatePatch) Empty() bool {
	return p.History == nil && p.Expenses == nil && p.FixedExpenses == nil && p.Services == nil &&
		p.Barbers == nil && p.Appointments == nil && p.Settings == nil
}

// PatchFromState builds a patch that sends every collection of s.
func PatchFromState(s State) StatePatch {
	settings := s.Settings
	return StatePatch{
		History:       &s.History,
		Expenses:      &s.Expenses,
		FixedExpenses: &s.FixedExpenses,
		Services:      &s.Services,
		Barbers:       &s.Barbers,
		Appointments:  &s.Appointments,
		Settings:      &settings,
	}
}

type BusyInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (b BusyInterval) Contains(t time.Time) bool {
	return !t.Before(b.Start) && t.Before(b.End)
}

type Slot struct {
	Time  string    `json:"time"`
	Start time.Time `json:"start"`
	Past  bool      `json:"past"`
	Busy  bool      `json:"busy"`
}

func (s Slot) Available() bool {
	return !s.Past && !s.Busy
}

type DailyStats struct {
	Date     string          `json:"date"`
	Owner    decimal.Decimal `json:"owner"`
	Employee decimal.Decimal `json:"employee"`
	Total    decimal.Decimal `json:"total"`
	Expenses decimal.Decimal `json:"expenses"`
	Net      decimal.Decimal `json:"net"`
	Cash     decimal.Decimal `json:"cash"`
	Benefit  decimal.Decimal `json:"benefit"`
	Count    int             `json:"count"`
}

type MonthSummary struct {
	Month    string          `json:"month"`
	Sales    decimal.Decimal `json:"sales"`
	Expenses decimal.Decimal `json:"expenses"`
	Fixed    decimal.Decimal `json:"fixed"`
	Net      decimal.Decimal `json:"net"`
	Days     []DailyStats    `json:"days"`
}

type ServiceCount struct {
	Name         string `json:"name"`
	Count        int    `json:"count"`
	SharePercent int    `json:"sharePercent"`
}

type LoginRequest struct {
	Role     string `json:"role"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expiresAt"`
}

type Actor struct {
	Role string
}

type BookingRequest struct {
	Name      string          `json:"name"`
	Phone     string          `json:"phone"`
	Service   string          `json:"service"`
	Price     decimal.Decimal `json:"price"`
	StartTime time.Time       `json:"startTime"`
	EndTime   time.Time       `json:"endTime"`
}

type BookingResponse struct {
	Success     bool         `json:"success"`
	Duplicate   bool         `json:"duplicate"`
	Appointment *Appointment `json:"appointment,omitempty"`
	DepositLink string       `json:"depositLink,omitempty"`
}

// AppointmentRef identifies an appointment the way the different clients do:
// by id, by customer name and start time (staff screens), or by the position in
// the caller's own list (customer "my appointments" screen).
type AppointmentRef struct {
	ID        string     `json:"id,omitempty"`
	Name      string     `json:"name,omitempty"`
	StartTime *time.Time `json:"startTime,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Index     *int       `json:"index,omitempty"`
}

type ConfirmResponse struct {
	Success          bool         `json:"success"`
	Appointment      *Appointment `json:"appointment,omitempty"`
	ConfirmationLink string       `json:"confirmationLink,omitempty"`
}

type CompleteAppointmentRequest struct {
	ID            string           `json:"id"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	PaymentMethod string           `json:"paymentMethod"`
	Role          string           `json:"role,omitempty"`
}

type SaleRequest struct {
	ID            int64           `json:"id,omitempty"`
	Date          string          `json:"date,omitempty"`
	Role          string          `json:"role,omitempty"`
	Items         []string        `json:"items"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"paymentMethod"`
}

type ExpenseRequest struct {
	Date   string          `json:"date,omitempty"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

type FixedExpenseRequest struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

// DefaultServices is the catalog served until the owner stores one.
func DefaultServices() []Service {
	one := decimal.RequireFromString("1.000")
	half := decimal.RequireFromString("0.500")
	return []Service{
		{Name: "Haircut", Price: one},
		{Name: "Beard trim", Price: one},
		{Name: "Face wax", Price: one},
		{Name: "Beard dye", Price: one},
		{Name: "Head and shoulder massage", Price: one},
		{Name: "Kids haircut", Price: one},
		{Name: "Styling", Price: one},
		{Name: "Hair wash", Price: half},
		{Name: "Nose strip", Price: half},
		{Name: "Threading", Price: half},
		{Name: "Hair dye", Price: decimal.RequireFromString("1.500")},
		{Name: "Facial cleansing", Price: decimal.RequireFromString("2.000")},
		{Name: "Hair straightening", Price: decimal.RequireFromString("3.000")},
		{Name: "Protein treatment", Price: decimal.RequireFromString("15.000")},
	}
}
