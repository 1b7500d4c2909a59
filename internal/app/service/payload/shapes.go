package payload

import (
	"encoding/json"
	"strings"
)

// Shape is one strongly typed payload variant. Decode reports false when the
// document does not carry a buyer email in this variant's layout.
type Shape interface {
	Name() string
	Decode(doc []byte) (*Event, bool)
}

// DefaultShapes is the priority order used by the Normalizer.
func DefaultShapes() []Shape {
	return []Shape{nestedShape{}, contactPurchaseShape{}, flatShape{}}
}

type contact struct {
	Email     flexString `json:"email"`
	FirstName flexString `json:"first_name"`
	LastName  flexString `json:"last_name"`
	Name      flexString `json:"name"`
	Phone     flexString `json:"phone"`
	IP        flexString `json:"ip"`
	UserAgent flexString `json:"user_agent"`
}

func (c *contact) names() (string, string) {
	first, last := firstNonEmpty(c.FirstName), firstNonEmpty(c.LastName)
	if first == "" && last == "" {
		return splitName(string(c.Name))
	}
	return first, last
}

// nested: {"event": "...", "data": {"id": ..., "contact": {...}, "line_items": [...]}}
type nestedShape struct{}

type nestedLineItem struct {
	ProductID   flexString `json:"product_id"`
	ID          flexString `json:"id"`
	Name        flexString `json:"name"`
	ProductName flexString `json:"product_name"`
	Amount      flexAmount `json:"amount"`
	Price       flexAmount `json:"price"`
	Currency    flexString `json:"currency"`
}

type nestedDoc struct {
	Event flexString `json:"event"`
	Type  flexString `json:"type"`
	Data  *struct {
		ID            flexString       `json:"id"`
		OrderID       flexString       `json:"order_id"`
		TransactionID flexString       `json:"transaction_id"`
		Status        flexString       `json:"status"`
		Amount        flexAmount       `json:"amount"`
		Total         flexAmount       `json:"total"`
		Currency      flexString       `json:"currency"`
		Contact       *contact         `json:"contact"`
		LineItems     []nestedLineItem `json:"line_items"`
	} `json:"data"`
}

func (nestedShape) Name() string { return "nested" }

func (s nestedShape) Decode(doc []byte) (*Event, bool) {
	var d nestedDoc
	if err := json.Unmarshal(doc, &d); err != nil || d.Data == nil || d.Data.Contact == nil {
		return nil, false
	}
	email := firstNonEmpty(d.Data.Contact.Email)
	if email == "" {
		return nil, false
	}
	ev := &Event{
		Shape:         s.Name(),
		Kind:          kindFrom(string(d.Event), string(d.Type), string(d.Data.Status)),
		Email:         email,
		Phone:         firstNonEmpty(d.Data.Contact.Phone),
		TransactionID: firstNonEmpty(d.Data.TransactionID, d.Data.OrderID, d.Data.ID),
		Currency:      firstNonEmpty(d.Data.Currency),
		ClientIP:      firstNonEmpty(d.Data.Contact.IP),
		UserAgent:     firstNonEmpty(d.Data.Contact.UserAgent),
	}
	ev.FirstName, ev.LastName = d.Data.Contact.names()
	amount := firstAmount(d.Data.Amount, d.Data.Total)
	if len(d.Data.LineItems) > 0 {
		item := d.Data.LineItems[0]
		ev.ProductID = firstNonEmpty(item.ProductID, item.ID)
		ev.ProductName = firstNonEmpty(item.ProductName, item.Name)
		if !amount.Set {
			amount = firstAmount(item.Amount, item.Price)
		}
		if ev.Currency == "" {
			ev.Currency = firstNonEmpty(item.Currency)
		}
	}
	ev.Amount = amount.Decimal
	return ev, true
}

// contact_purchase: {"event_type": "...", "contact": {...}, "purchase": {...}}
type contactPurchaseShape struct{}

type contactPurchaseDoc struct {
	Event     flexString `json:"event"`
	EventType flexString `json:"event_type"`
	Type      flexString `json:"type"`
	Contact   *contact   `json:"contact"`
	Purchase  *struct {
		ID            flexString `json:"id"`
		TransactionID flexString `json:"transaction_id"`
		OrderID       flexString `json:"order_id"`
		ProductID     flexString `json:"product_id"`
		ProductName   flexString `json:"product_name"`
		Product       *struct {
			ID   flexString `json:"id"`
			Name flexString `json:"name"`
		} `json:"product"`
		Amount   flexAmount `json:"amount"`
		Price    flexAmount `json:"price"`
		Currency flexString `json:"currency"`
		Status   flexString `json:"status"`
	} `json:"purchase"`
}

func (contactPurchaseShape) Name() string { return "contact_purchase" }

func (s contactPurchaseShape) Decode(doc []byte) (*Event, bool) {
	var d contactPurchaseDoc
	if err := json.Unmarshal(doc, &d); err != nil || d.Contact == nil || d.Purchase == nil {
		return nil, false
	}
	email := firstNonEmpty(d.Contact.Email)
	if email == "" {
		return nil, false
	}
	p := d.Purchase
	ev := &Event{
		Shape:         s.Name(),
		Kind:          kindFrom(string(d.Event), string(d.EventType), string(d.Type), string(p.Status)),
		Email:         email,
		Phone:         firstNonEmpty(d.Contact.Phone),
		ProductID:     firstNonEmpty(p.ProductID),
		ProductName:   firstNonEmpty(p.ProductName),
		TransactionID: firstNonEmpty(p.TransactionID, p.OrderID, p.ID),
		Amount:        firstAmount(p.Amount, p.Price).Decimal,
		Currency:      firstNonEmpty(p.Currency),
		ClientIP:      firstNonEmpty(d.Contact.IP),
		UserAgent:     firstNonEmpty(d.Contact.UserAgent),
	}
	if p.Product != nil {
		if ev.ProductID == "" {
			ev.ProductID = firstNonEmpty(p.Product.ID)
		}
		if ev.ProductName == "" {
			ev.ProductName = firstNonEmpty(p.Product.Name)
		}
	}
	ev.FirstName, ev.LastName = d.Contact.names()
	return ev, true
}

// flat: legacy key/value payloads with several aliases per field.
type flatShape struct{}

type flatDoc struct {
	Event     flexString `json:"event"`
	EventType flexString `json:"event_type"`
	Type      flexString `json:"type"`
	Status    flexString `json:"status"`

	Email         flexString `json:"email"`
	ContactEmail  flexString `json:"contact_email"`
	CustomerEmail flexString `json:"customer_email"`

	FirstName        flexString `json:"first_name"`
	ContactFirstName flexString `json:"contact_first_name"`
	LastName         flexString `json:"last_name"`
	ContactLastName  flexString `json:"contact_last_name"`
	Name             flexString `json:"name"`
	FullName         flexString `json:"full_name"`

	Phone        flexString `json:"phone"`
	ContactPhone flexString `json:"contact_phone"`
	PhoneNumber  flexString `json:"phone_number"`

	Product      flexString `json:"product"`
	ProductID    flexString `json:"product_id"`
	ProductSlug  flexString `json:"product_slug"`
	ProductName  flexString `json:"product_name"`
	ProductTitle flexString `json:"product_title"`

	TransactionID flexString `json:"transaction_id"`
	OrderID       flexString `json:"order_id"`
	ChargeID      flexString `json:"charge_id"`
	PurchaseID    flexString `json:"purchase_id"`

	Amount   flexAmount `json:"amount"`
	Price    flexAmount `json:"price"`
	Total    flexAmount `json:"total"`
	Currency flexString `json:"currency"`

	IP        flexString `json:"ip"`
	IPAddress flexString `json:"ip_address"`
	UserAgent flexString `json:"user_agent"`
}

func (flatShape) Name() string { return "flat" }

func (s flatShape) Decode(doc []byte) (*Event, bool) {
	var d flatDoc
	if err := json.Unmarshal(doc, &d); err != nil {
		return nil, false
	}
	email := firstNonEmpty(d.Email, d.ContactEmail, d.CustomerEmail)
	if email == "" {
		return nil, false
	}
	ev := &Event{
		Shape:         s.Name(),
		Kind:          kindFrom(string(d.Event), string(d.EventType), string(d.Type), string(d.Status)),
		Email:         email,
		FirstName:     firstNonEmpty(d.FirstName, d.ContactFirstName),
		LastName:      firstNonEmpty(d.LastName, d.ContactLastName),
		Phone:         firstNonEmpty(d.Phone, d.ContactPhone, d.PhoneNumber),
		ProductID:     firstNonEmpty(d.ProductID, d.ProductSlug, d.Product),
		ProductName:   firstNonEmpty(d.ProductName, d.ProductTitle),
		TransactionID: firstNonEmpty(d.TransactionID, d.OrderID, d.ChargeID, d.PurchaseID),
		Amount:        firstAmount(d.Amount, d.Price, d.Total).Decimal,
		Currency:      firstNonEmpty(d.Currency),
		ClientIP:      firstNonEmpty(d.IP, d.IPAddress),
		UserAgent:     firstNonEmpty(d.UserAgent),
	}
	if ev.FirstName == "" && ev.LastName == "" {
		ev.FirstName, ev.LastName = splitName(firstNonEmpty(d.Name, d.FullName))
	}
	// "product" sometimes carries the display name rather than an id
	if ev.ProductName == "" && strings.Contains(ev.ProductID, " ") {
		ev.ProductName = ev.ProductID
	}
	return ev, true
}
