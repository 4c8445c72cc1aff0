package node

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidNode is returned when a node fails validation
var ErrInvalidNode = errors.New("node: invalid node")

var nodeValidate = validator.New()

// Validate checks required tags, canonical vocabulary and numeric ranges.
func (n *Node) Validate() error {
	if n == nil {
		return fmt.Errorf("%w: nil node", ErrInvalidNode)
	}
	if err := nodeValidate.Struct(n); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w %q: %s", ErrInvalidNode, n.NodeID, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w %q: %v", ErrInvalidNode, n.NodeID, err)
	}
	return nil
}
