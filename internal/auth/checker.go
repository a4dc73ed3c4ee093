package auth

import "fmt"

// OperatorChecker answers whether a user id belongs to the configured
// operator allow-list. The list is fixed at startup.
type OperatorChecker struct {
	allowed map[int64]struct{}
}

// NewOperatorChecker creates a checker over the given operator ids.
// At least one operator must be configured.
func NewOperatorChecker(ids []int64) (*OperatorChecker, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("operator allow-list cannot be empty")
	}
	allowed := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		allowed[id] = struct{}{}
	}
	return &OperatorChecker{allowed: allowed}, nil
}

// IsOperator reports whether the user id is on the allow-list.
func (c *OperatorChecker) IsOperator(userID int64) bool {
	_, ok := c.allowed[userID]
	return ok
}
