package host

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"flats-rental-backend/internal/model"
)

func CreateAccount(account string) model.Step {
	return model.Step{Kind: model.StepCreateAccount, Account: account}
}

// Transfer moves amount from the chain origin to account.
func Transfer(account string, amount decimal.Decimal) model.Step {
	return model.Step{Kind: model.StepTransfer, Account: account, Amount: amount}
}

func Deploy(account string, code model.Code) model.Step {
	return model.Step{Kind: model.StepDeploy, Account: account, Code: code}
}

// FunctionCall invokes method on account with the chain origin as
// predecessor. A positive deposit is paid from the origin's balance.
func FunctionCall(account, method string, args any, deposit decimal.Decimal) (model.Step, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return model.Step{}, fmt.Errorf("failed to encode %s args: %w", method, err)
	}
	return model.Step{
		Kind:    model.StepFunctionCall,
		Account: account,
		Method:  method,
		Args:    raw,
		Amount:  deposit,
	}, nil
}
