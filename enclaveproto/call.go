package enclaveproto

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/quietpush/enclavecore/errs"
)

// EncodeRequest builds a request Frame for method, CBOR-encoding req into
// the frame's Body.
func EncodeRequest(requestID uint64, method string, req interface{}) (Frame, error) {
	body, err := cbor.Marshal(req)
	if err != nil {
		return Frame{}, err
	}
	return Frame{RequestID: requestID, Method: method, Body: body}, nil
}

// EncodeResponse builds a success response Frame echoing requestID and
// method, CBOR-encoding resp into the frame's Body.
func EncodeResponse(requestID uint64, method string, resp interface{}) (Frame, error) {
	body, err := cbor.Marshal(resp)
	if err != nil {
		return Frame{}, err
	}
	return Frame{RequestID: requestID, Method: method, Body: body}, nil
}

// EncodeError builds a failure response Frame carrying err's kind and
// message instead of a body.
func EncodeError(requestID uint64, method string, err error) Frame {
	kind := errs.Unknown
	if e, ok := err.(*errs.Error); ok {
		kind = e.Kind
	}
	return Frame{RequestID: requestID, Method: method, ErrKind: kind.String(), ErrMsg: err.Error()}
}

// Decode CBOR-decodes a frame's Body into v.
func Decode(f Frame, v interface{}) error {
	return cbor.Unmarshal(f.Body, v)
}

// Err returns the *errs.Error a failure Frame carries, or nil if f is not
// an error response.
func (f Frame) Err() error {
	if f.ErrKind == "" {
		return nil
	}
	return errs.New(errs.ParseKind(f.ErrKind), "%s", f.ErrMsg)
}
