package execution

import (
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
)

// translationTable maps a substring of an upstream error message to a
// distinct, user-facing message, checked in order.
var translationTable = []struct {
	substr  string
	message string
}{
	{"insufficient funds", "insufficient funds to cover this swap"},
	{"insufficient balance", "insufficient funds to cover this swap"},
	{"gas required exceeds", "unable to estimate gas for this transaction"},
	{"out of gas", "unable to estimate gas for this transaction"},
	{"slippage", "price moved beyond your slippage tolerance"},
	{"deadline", "quote expired before it could be submitted"},
	{"expired", "quote expired before it could be submitted"},
	{"network", "network error communicating with the chain"},
	{"connection refused", "network error communicating with the chain"},
	{"nonce too low", "transaction nonce conflict, please retry"},
	{"nonce too high", "transaction nonce conflict, please retry"},
	{"replacement transaction underpriced", "a pending transaction is blocking this one, please retry"},
}

// TranslateError maps err's upstream message to a distinct, user-facing
// message by substring, falling back to the original error when nothing
// matches. Signer secrets never reach error messages, so the translated
// (or original) error is safe to surface to clients.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, rule := range translationTable {
		if strings.Contains(msg, rule.substr) {
			log.Warn().Err(err).Str("translated", rule.message).Msg("execution error translated for user display")
			return errors.New(rule.message)
		}
	}
	return err
}
