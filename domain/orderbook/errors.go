package orderbook

import "errors"

var (
	// ErrInvalidQuantity is returned for a zero or negative quantity.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")

	// ErrInvalidSide is returned when a side is neither bid nor ask.
	ErrInvalidSide = errors.New("side is neither bid nor ask")

	// ErrInvalidOrderKind is returned when an order type is neither limit nor market.
	ErrInvalidOrderKind = errors.New("order type is neither limit nor market")

	// ErrInvalidPrice is returned for a limit order without a positive price.
	ErrInvalidPrice = errors.New("limit price must be greater than 0")

	// ErrWouldCross is returned when a modify would move a resting order
	// through the opposite best price.
	ErrWouldCross = errors.New("modified price crosses the opposite side")

	// ErrOrderNotFound is raised by the tree when an id is not indexed.
	ErrOrderNotFound = errors.New("order does not exist")

	// ErrReentrantMutation is returned when a notifier handler tries to
	// mutate the book it is being notified from.
	ErrReentrantMutation = errors.New("book mutated from inside a notification")
)

// ValidationError reports a rejected submission. The book is untouched.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a submission validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks a submission without touching any book.
func (s Submission) Validate() error {
	if !s.Quantity.IsPositive() {
		return &ValidationError{Field: "quantity", Err: ErrInvalidQuantity}
	}
	if !s.Side.Valid() {
		return &ValidationError{Field: "side", Err: ErrInvalidSide}
	}
	if !s.Kind.Valid() {
		return &ValidationError{Field: "type", Err: ErrInvalidOrderKind}
	}
	if s.Kind == Limit && !s.Price.IsPositive() {
		return &ValidationError{Field: "price", Err: ErrInvalidPrice}
	}
	return nil
}
