package fees

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"rentcar/internal/domain/shared/money"
)

var ErrUnknownKind = errors.New("fees: unknown fee kind")

// Kind enumerates every surcharge the engine knows how to price.
type Kind string

const (
	KindCancellation  Kind = "cancellation"
	KindOvertime      Kind = "overtime"
	KindCleaning      Kind = "cleaning"
	KindDeodorization Kind = "deodorization"
	KindExtension     Kind = "extension"
)

var kindOrder = map[Kind]int{
	KindCancellation:  0,
	KindOvertime:      1,
	KindCleaning:      2,
	KindDeodorization: 3,
	KindExtension:     4,
}

func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := kindOrder[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
	return k, nil
}

// Breakdown maps each applicable fee kind to its amount. A kind present with a zero
// amount is applicable but free; an absent kind does not apply.
type Breakdown struct {
	Items map[Kind]money.Money `json:"items" bson:"items"`
	Total money.Money          `json:"total" bson:"total"`
}

func NewBreakdown(currency string) Breakdown {
	return Breakdown{Items: map[Kind]money.Money{}, Total: money.Zero(currency)}
}

// Set records an amount for kind, replacing any previous value, and recomputes the total.
func (b *Breakdown) Set(kind Kind, amount money.Money) error {
	if b.Items == nil {
		b.Items = map[Kind]money.Money{}
	}
	b.Items[kind] = amount
	return b.recalculate()
}

func (b Breakdown) Clone() Breakdown {
	out := Breakdown{Items: make(map[Kind]money.Money, len(b.Items)), Total: b.Total}
	for k, v := range b.Items {
		out.Items[k] = v
	}
	return out
}

func (b *Breakdown) Has(kind Kind) bool {
	_, ok := b.Items[kind]
	return ok
}

// Kinds returns applicable kinds in a stable order independent of insertion order.
func (b Breakdown) Kinds() []Kind {
	out := make([]Kind, 0, len(b.Items))
	for k := range b.Items {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return kindOrder[out[i]] < kindOrder[out[j]] })
	return out
}

func (b *Breakdown) recalculate() error {
	amounts := make([]money.Money, 0, len(b.Items))
	for _, k := range b.Kinds() {
		amounts = append(amounts, b.Items[k])
	}
	total, err := money.Sum(b.Total.Currency, amounts...)
	if err != nil {
		return err
	}
	b.Total = total
	return nil
}
