package multicall

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/omnes-tech/multi-static-call/internal/bytesutil"
)

// Wire layout: byte[0] is the operation tag, the rest is the payload shaped
// by the tag. Lists are uint16-counted, call data is uint32-length-prefixed,
// addresses are fixed 20 bytes, values and balances fixed 32 bytes, flags a
// single byte. All integers big-endian.
const (
	addressLen = common.AddressLength
	wordLen    = 32
	hashLen    = common.HashLength

	// MaxBatchItems bounds the item count of one envelope.
	MaxBatchItems = 1<<16 - 1
)

// reader walks the payload with bounds checking. Decoding is atomic: any
// short read aborts the whole decode, nothing partial escapes.
type reader struct {
	buf []byte
	off int
}

func (r *reader) take(n int) ([]byte, error) {
	b, err := bytesutil.Slice(r.buf, r.off, n)
	if err != nil {
		return nil, fmt.Errorf("truncated payload at offset %d: %w", r.off, err)
	}
	r.off += n
	return b, nil
}

func (r *reader) u8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) u64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *reader) address() (common.Address, error) {
	b, err := r.take(addressLen)
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(b), nil
}

func (r *reader) hash() (common.Hash, error) {
	b, err := r.take(hashLen)
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(b), nil
}

func (r *reader) word() (*uint256.Int, error) {
	b, err := r.take(wordLen)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(b), nil
}

func (r *reader) bytes() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	return bytesutil.Copy(b), nil
}

func (r *reader) bool() (bool, error) {
	b, err := r.u8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("invalid bool byte %d at offset %d", b, r.off-1)
	}
}

func (r *reader) done() error {
	if r.off != len(r.buf) {
		return fmt.Errorf("trailing bytes: %d consumed, %d present", r.off, len(r.buf))
	}
	return nil
}

// writer is the encode-side counterpart of reader.
type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64) { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }

func (w *writer) address(a common.Address) { w.buf = append(w.buf, a.Bytes()...) }
func (w *writer) hash(h common.Hash)       { w.buf = append(w.buf, h.Bytes()...) }

func (w *writer) word(v *uint256.Int) {
	var b [wordLen]byte
	if v != nil {
		b = v.Bytes32()
	}
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) bytes(b []byte) {
	w.u32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

// DecodeRequest parses a tagged envelope into a typed request. The tag is
// validated before the payload is touched; an out-of-range tag yields
// InvalidTagError with nothing downstream observable.
func DecodeRequest(envelope []byte) (*Request, error) {
	if len(envelope) == 0 {
		return nil, fmt.Errorf("empty envelope")
	}
	kind := OperationKind(envelope[0])
	if !kind.Valid() {
		return nil, &InvalidTagError{Tag: envelope[0]}
	}

	r := &reader{buf: envelope, off: 1}
	req := &Request{Kind: kind}

	switch kind {
	case KindStaticCall, KindStaticCallStrict:
		if kind == KindStaticCallStrict {
			flag, err := r.bool()
			if err != nil {
				return nil, err
			}
			req.RequireSuccess = flag
		}
		count, err := r.u16()
		if err != nil {
			return nil, err
		}
		req.StaticCalls = make([]StaticCallSpec, count)
		for i := range req.StaticCalls {
			if req.StaticCalls[i].Target, err = r.address(); err != nil {
				return nil, err
			}
			if req.StaticCalls[i].Data, err = r.bytes(); err != nil {
				return nil, err
			}
		}

	case KindStaticCallStrictPerItem:
		count, err := r.u16()
		if err != nil {
			return nil, err
		}
		req.ConditionalCalls = make([]ConditionalStaticCallSpec, count)
		for i := range req.ConditionalCalls {
			if req.ConditionalCalls[i].Target, err = r.address(); err != nil {
				return nil, err
			}
			if req.ConditionalCalls[i].RequireSuccess, err = r.bool(); err != nil {
				return nil, err
			}
			if req.ConditionalCalls[i].Data, err = r.bytes(); err != nil {
				return nil, err
			}
		}

	case KindSimulate:
		count, err := r.u16()
		if err != nil {
			return nil, err
		}
		req.Calls = make([]CallSpec, count)
		for i := range req.Calls {
			if req.Calls[i].Target, err = r.address(); err != nil {
				return nil, err
			}
			if req.Calls[i].Value, err = r.word(); err != nil {
				return nil, err
			}
			if req.Calls[i].Data, err = r.bytes(); err != nil {
				return nil, err
			}
		}

	case KindCodeLength, KindBalances, KindAddressesData:
		count, err := r.u16()
		if err != nil {
			return nil, err
		}
		req.Addresses = make([]common.Address, count)
		for i := range req.Addresses {
			if req.Addresses[i], err = r.address(); err != nil {
				return nil, err
			}
		}

	case KindChainData:
		// No payload.
	}

	if err := r.done(); err != nil {
		return nil, err
	}
	return req, nil
}

// EncodeRequest is the structural inverse of DecodeRequest.
func EncodeRequest(req *Request) ([]byte, error) {
	if !req.Kind.Valid() {
		return nil, &InvalidTagError{Tag: uint8(req.Kind)}
	}
	if req.Len() > MaxBatchItems {
		return nil, fmt.Errorf("batch of %d items exceeds limit %d", req.Len(), MaxBatchItems)
	}

	w := &writer{}
	w.u8(uint8(req.Kind))

	switch req.Kind {
	case KindStaticCall, KindStaticCallStrict:
		if req.Kind == KindStaticCallStrict {
			w.bool(req.RequireSuccess)
		}
		w.u16(uint16(len(req.StaticCalls)))
		for _, c := range req.StaticCalls {
			w.address(c.Target)
			w.bytes(c.Data)
		}
	case KindStaticCallStrictPerItem:
		w.u16(uint16(len(req.ConditionalCalls)))
		for _, c := range req.ConditionalCalls {
			w.address(c.Target)
			w.bool(c.RequireSuccess)
			w.bytes(c.Data)
		}
	case KindSimulate:
		w.u16(uint16(len(req.Calls)))
		for _, c := range req.Calls {
			w.address(c.Target)
			w.word(c.Value)
			w.bytes(c.Data)
		}
	case KindCodeLength, KindBalances, KindAddressesData:
		w.u16(uint16(len(req.Addresses)))
		for _, a := range req.Addresses {
			w.address(a)
		}
	case KindChainData:
	}

	return w.buf, nil
}

// EncodeResponse serializes an aggregated result into the tagged response
// buffer. Simulate has no success response: its outcomes always travel as a
// SimulationReport payload instead.
func EncodeResponse(resp *Response) ([]byte, error) {
	if !resp.Kind.Valid() {
		return nil, &InvalidTagError{Tag: uint8(resp.Kind)}
	}
	if resp.Kind == KindSimulate {
		return nil, fmt.Errorf("simulate has no success response")
	}

	w := &writer{}
	w.u8(uint8(resp.Kind))

	switch resp.Kind {
	case KindStaticCall:
		w.u16(uint16(len(resp.ReturnData)))
		for _, d := range resp.ReturnData {
			w.bytes(d)
		}
	case KindStaticCallStrict, KindStaticCallStrictPerItem:
		w.u16(uint16(len(resp.Outcomes)))
		for _, o := range resp.Outcomes {
			w.bool(o.Success)
			w.bytes(o.ReturnData)
		}
	case KindCodeLength:
		w.u16(uint16(len(resp.Lengths)))
		for _, n := range resp.Lengths {
			w.u64(n)
		}
	case KindBalances:
		w.u16(uint16(len(resp.Balances)))
		for _, b := range resp.Balances {
			w.word(b)
		}
	case KindAddressesData:
		w.u16(uint16(len(resp.AddressData)))
		for _, d := range resp.AddressData {
			w.u64(d.CodeLength)
			w.word(d.Balance)
		}
	case KindChainData:
		c := resp.Chain
		if c == nil {
			return nil, fmt.Errorf("chain data response missing facts")
		}
		w.u64(c.ChainID)
		w.u64(c.Height)
		w.hash(c.Hash)
		w.word(c.BaseFee)
		w.address(c.Coinbase)
		w.u64(c.Time)
		w.hash(c.Random)
		w.u64(c.GasLimit)
		w.word(c.GasPrice)
	}

	return w.buf, nil
}

// DecodeResponse parses a tagged response buffer produced by EncodeResponse.
func DecodeResponse(buf []byte) (*Response, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("empty response buffer")
	}
	kind := OperationKind(buf[0])
	if !kind.Valid() {
		return nil, &InvalidTagError{Tag: buf[0]}
	}
	if kind == KindSimulate {
		return nil, fmt.Errorf("simulate has no success response")
	}

	r := &reader{buf: buf, off: 1}
	resp := &Response{Kind: kind}

	switch kind {
	case KindStaticCall:
		count, err := r.u16()
		if err != nil {
			return nil, err
		}
		resp.ReturnData = make([][]byte, count)
		for i := range resp.ReturnData {
			if resp.ReturnData[i], err = r.bytes(); err != nil {
				return nil, err
			}
		}
	case KindStaticCallStrict, KindStaticCallStrictPerItem:
		count, err := r.u16()
		if err != nil {
			return nil, err
		}
		resp.Outcomes = make([]CallOutcome, count)
		for i := range resp.Outcomes {
			if resp.Outcomes[i].Success, err = r.bool(); err != nil {
				return nil, err
			}
			if resp.Outcomes[i].ReturnData, err = r.bytes(); err != nil {
				return nil, err
			}
		}
	case KindCodeLength:
		count, err := r.u16()
		if err != nil {
			return nil, err
		}
		resp.Lengths = make([]uint64, count)
		for i := range resp.Lengths {
			if resp.Lengths[i], err = r.u64(); err != nil {
				return nil, err
			}
		}
	case KindBalances:
		count, err := r.u16()
		if err != nil {
			return nil, err
		}
		resp.Balances = make([]*uint256.Int, count)
		for i := range resp.Balances {
			if resp.Balances[i], err = r.word(); err != nil {
				return nil, err
			}
		}
	case KindAddressesData:
		count, err := r.u16()
		if err != nil {
			return nil, err
		}
		resp.AddressData = make([]AddressData, count)
		for i := range resp.AddressData {
			if resp.AddressData[i].CodeLength, err = r.u64(); err != nil {
				return nil, err
			}
			if resp.AddressData[i].Balance, err = r.word(); err != nil {
				return nil, err
			}
		}
	case KindChainData:
		c := &ChainFacts{}
		var err error
		if c.ChainID, err = r.u64(); err != nil {
			return nil, err
		}
		if c.Height, err = r.u64(); err != nil {
			return nil, err
		}
		if c.Hash, err = r.hash(); err != nil {
			return nil, err
		}
		if c.BaseFee, err = r.word(); err != nil {
			return nil, err
		}
		if c.Coinbase, err = r.address(); err != nil {
			return nil, err
		}
		if c.Time, err = r.u64(); err != nil {
			return nil, err
		}
		if c.Random, err = r.hash(); err != nil {
			return nil, err
		}
		if c.GasLimit, err = r.u64(); err != nil {
			return nil, err
		}
		if c.GasPrice, err = r.word(); err != nil {
			return nil, err
		}
		resp.Chain = c
	}

	if err := r.done(); err != nil {
		return nil, err
	}
	return resp, nil
}

// EncodeSimulationPayload serializes a simulation report for wire transport
// as the payload of the distinguished failure.
func EncodeSimulationPayload(report *SimulationReport) []byte {
	w := &writer{}
	w.u16(uint16(len(report.Outcomes)))
	for _, o := range report.Outcomes {
		w.bool(o.Success)
		w.u64(o.CostUsed)
		w.bytes(o.ReturnData)
	}
	return w.buf
}

// DecodeSimulationPayload parses a payload produced by
// EncodeSimulationPayload.
func DecodeSimulationPayload(buf []byte) (*SimulationReport, error) {
	r := &reader{buf: buf}
	count, err := r.u16()
	if err != nil {
		return nil, err
	}
	report := &SimulationReport{Outcomes: make([]SimulatedOutcome, count)}
	for i := range report.Outcomes {
		if report.Outcomes[i].Success, err = r.bool(); err != nil {
			return nil, err
		}
		if report.Outcomes[i].CostUsed, err = r.u64(); err != nil {
			return nil, err
		}
		if report.Outcomes[i].ReturnData, err = r.bytes(); err != nil {
			return nil, err
		}
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return report, nil
}
