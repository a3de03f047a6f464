package validator

import (
	"fmt"

	"github.com/tolelom/cookiepool/core"
)

// Withdraw and add-liquidity intents are part of the wire format but not
// served yet. They fail closed.
func init() {
	Register(core.IntentWithdraw, unsupported)
	Register(core.IntentAddLiquidity, unsupported)
}

func unsupported(ctx *Context) (*Candidate, error) {
	return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedIntent, ctx.Intent.Action)
}
