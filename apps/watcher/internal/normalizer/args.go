package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// transferArgs is the union of argument fields carried by the transfer-class
// event kinds. Which fields are required is decided per kind in decode.
type transferArgs struct {
	From    string     `json:"from"`
	To      string     `json:"to"`
	Amount  *amountArg `json:"amount"`
	AssetID *idArg     `json:"assetId"`
}

// amountArg accepts integer amounts encoded as JSON numbers, decimal strings
// or 0x-prefixed hex strings.
type amountArg struct {
	big.Int
}

func (a *amountArg) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(bytes.TrimSpace(data), `"`))
	if s == "" || s == "null" {
		return fmt.Errorf("empty amount")
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	if _, ok := a.SetString(s, base); !ok {
		return fmt.Errorf("amount %q is not an integer", s)
	}
	if a.Sign() < 0 {
		return fmt.Errorf("amount %q is negative", s)
	}
	return nil
}

// idArg accepts asset identifiers encoded as JSON numbers or strings.
type idArg string

func (id *idArg) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*id = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*id = idArg(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("asset id: %w", err)
	}
	*id = idArg(n.String())
	return nil
}
