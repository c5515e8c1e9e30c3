package memory

import (
	"sync"

	domainbooking "rentcar/internal/domain/booking"
	domaincheckrecord "rentcar/internal/domain/checkrecord"
	domainextension "rentcar/internal/domain/extension"
	domainpayment "rentcar/internal/domain/payment"
)

type recordKey struct {
	booking   domainbooking.BookingID
	direction domaincheckrecord.Direction
}

// Store keeps committed state for every aggregate. Units stage their writes and apply
// them under the write lock at commit, so readers never observe half a transition.
type Store struct {
	mu         sync.RWMutex
	bookings   map[domainbooking.BookingID]*domainbooking.Booking
	payments   map[string]*domainpayment.Payment
	records    map[recordKey]*domaincheckrecord.CheckRecord
	extensions map[string]*domainextension.Request
}

func NewStore() *Store {
	return &Store{
		bookings:   make(map[domainbooking.BookingID]*domainbooking.Booking),
		payments:   make(map[string]*domainpayment.Payment),
		records:    make(map[recordKey]*domaincheckrecord.CheckRecord),
		extensions: make(map[string]*domainextension.Request),
	}
}
