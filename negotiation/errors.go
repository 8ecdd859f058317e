package negotiation

import "fmt"

// Error codes carried by TransitionError
const (
	CodeNotAllowedInStatus  = "NOT_ALLOWED_IN_STATUS"
	CodeWrongParty          = "WRONG_PARTY"
	CodeOutOfTurn           = "OUT_OF_TURN"
	CodeInvalidPrice        = "INVALID_PRICE"
	CodeInvalidQuantity     = "INVALID_QUANTITY"
	CodeQuantityUnavailable = "QUANTITY_UNAVAILABLE"
	CodeNoCounterOffer      = "NO_COUNTER_OFFER"
	CodeInconsistentState   = "INCONSISTENT_STATE"
)

// TransitionError reports why a transition is not legal for an order
type TransitionError struct {
	Code    string
	Action  Action
	Status  Status
	Message string
}

func (e *TransitionError) Error() string {
	if e.Action == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}

// Is matches another TransitionError by code, so the sentinels below work with errors.Is
func (e *TransitionError) Is(target error) bool {
	t, ok := target.(*TransitionError)
	return ok && t.Code == e.Code
}

var (
	ErrNotAllowedInStatus  = &TransitionError{Code: CodeNotAllowedInStatus, Message: "transition not allowed in current status"}
	ErrWrongParty          = &TransitionError{Code: CodeWrongParty, Message: "actor may not perform this transition"}
	ErrOutOfTurn           = &TransitionError{Code: CodeOutOfTurn, Message: "waiting for the counterpart to respond"}
	ErrInvalidPrice        = &TransitionError{Code: CodeInvalidPrice, Message: "price must be greater than zero"}
	ErrInvalidQuantity     = &TransitionError{Code: CodeInvalidQuantity, Message: "quantity must be greater than zero"}
	ErrQuantityUnavailable = &TransitionError{Code: CodeQuantityUnavailable, Message: "quantity exceeds available quantity"}
	ErrNoCounterOffer      = &TransitionError{Code: CodeNoCounterOffer, Message: "no counter-offer to accept"}
	ErrInconsistentState   = &TransitionError{Code: CodeInconsistentState, Message: "order state is inconsistent"}
)

func illegal(base *TransitionError, action Action, status Status) *TransitionError {
	return &TransitionError{
		Code:    base.Code,
		Action:  action,
		Status:  status,
		Message: base.Message,
	}
}

// CheckIntegrity reports data-integrity problems in an order received from the
// authoritative store. The order is never modified.
func CheckIntegrity(o Order) error {
	if o.BuyerAcceptedCounter && o.Status == StatusNegotiating {
		return &TransitionError{
			Code:    CodeInconsistentState,
			Status:  o.Status,
			Message: "buyer accepted a counter-offer but the order is negotiating again",
		}
	}
	return nil
}
