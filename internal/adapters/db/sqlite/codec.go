package sqlite

import (
	"github.com/atvirokodosprendimai/credbook/internal/domain"
	"github.com/fxamacker/cbor/v2"
)

// Snapshots are stored as deterministic CBOR so identical states produce
// identical payloads.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	// decimal.Decimal has no exported fields and is encoded through its
	// marshaler methods.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("sqlite: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("sqlite: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeState(state domain.AppState) ([]byte, error) {
	return encMode.Marshal(state)
}

func decodeState(payload []byte) (domain.AppState, error) {
	var state domain.AppState
	if err := decMode.Unmarshal(payload, &state); err != nil {
		return domain.AppState{}, err
	}
	return state, nil
}
