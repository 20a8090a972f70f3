package snmpval

import (
	"github.com/stardog-union/rocksnmp/internal/snmpwire"
	"github.com/stardog-union/rocksnmp/internal/storage"
)

// Value is spec.md §3's "OID value": a typed value that knows its own
// OID and how to serialize itself (type tag + OID + value bytes +
// alignment padding) into an outgoing variable binding.
type Value interface {
	OID() OID
	VarType() uint16

	// Ready reports whether the value can be serialized right now.
	// The compiled-for-MVP profile (spec.md §9 open question) never
	// defers: every concrete Value below always returns true. The
	// asynchronous data-ready path is reserved for a Value
	// implementation that polls something slower than a memory read.
	Ready() bool

	// AppendBinding appends this value's complete wire variable
	// binding (header + value bytes + padding) to dst.
	AppendBinding(dst []byte) []byte
}

// Integer is the snmpwire.VarInteger value kind.
type Integer struct {
	oid OID
	val int32
}

func NewInteger(oid OID, v int32) *Integer { return &Integer{oid: oid, val: v} }

func (v *Integer) OID() OID        { return v.oid }
func (v *Integer) VarType() uint16 { return snmpwire.VarInteger }
func (v *Integer) Ready() bool     { return true }
func (v *Integer) Value() int32    { return v.val }
func (v *Integer) AppendBinding(dst []byte) []byte {
	dst = snmpwire.AppendVarBindHeader(dst, snmpwire.VarInteger, v.oid)
	return snmpwire.AppendUint32Value(dst, uint32(v.val))
}

// Counter32 is the snmpwire.VarCounter32 value kind.
type Counter32 struct {
	oid OID
	val uint32
}

func NewCounter32(oid OID, v uint32) *Counter32 { return &Counter32{oid: oid, val: v} }

func (v *Counter32) OID() OID        { return v.oid }
func (v *Counter32) VarType() uint16 { return snmpwire.VarCounter32 }
func (v *Counter32) Ready() bool     { return true }
func (v *Counter32) Value() uint32   { return v.val }
func (v *Counter32) AppendBinding(dst []byte) []byte {
	dst = snmpwire.AppendVarBindHeader(dst, snmpwire.VarCounter32, v.oid)
	return snmpwire.AppendUint32Value(dst, v.val)
}

// Gauge32 is the snmpwire.VarGauge32 value kind.
type Gauge32 struct {
	oid OID
	val uint32
}

func NewGauge32(oid OID, v uint32) *Gauge32 { return &Gauge32{oid: oid, val: v} }

func (v *Gauge32) OID() OID        { return v.oid }
func (v *Gauge32) VarType() uint16 { return snmpwire.VarGauge32 }
func (v *Gauge32) Ready() bool     { return true }
func (v *Gauge32) Value() uint32   { return v.val }
func (v *Gauge32) AppendBinding(dst []byte) []byte {
	dst = snmpwire.AppendVarBindHeader(dst, snmpwire.VarGauge32, v.oid)
	return snmpwire.AppendUint32Value(dst, v.val)
}

// Counter64 is the snmpwire.VarCounter64 value kind.
type Counter64 struct {
	oid OID
	val uint64
}

func NewCounter64(oid OID, v uint64) *Counter64 { return &Counter64{oid: oid, val: v} }

func (v *Counter64) OID() OID        { return v.oid }
func (v *Counter64) VarType() uint16 { return snmpwire.VarCounter64 }
func (v *Counter64) Ready() bool     { return true }
func (v *Counter64) Value() uint64   { return v.val }
func (v *Counter64) AppendBinding(dst []byte) []byte {
	dst = snmpwire.AppendVarBindHeader(dst, snmpwire.VarCounter64, v.oid)
	return snmpwire.AppendUint64Value(dst, v.val)
}

// OctetString is the snmpwire.VarOctetString value kind.
type OctetString struct {
	oid OID
	val string
}

func NewOctetString(oid OID, v string) *OctetString { return &OctetString{oid: oid, val: v} }

func (v *OctetString) OID() OID        { return v.oid }
func (v *OctetString) VarType() uint16 { return snmpwire.VarOctetString }
func (v *OctetString) Ready() bool     { return true }
func (v *OctetString) Value() string   { return v.val }
func (v *OctetString) AppendBinding(dst []byte) []byte {
	dst = snmpwire.AppendVarBindHeader(dst, snmpwire.VarOctetString, v.oid)
	return snmpwire.AppendOctetStringValue(dst, []byte(v.val))
}

// LiveCounter64 is a Counter64 value that re-polls a storage.Source on
// every AppendBinding instead of serializing a value captured at
// registration time, matching the original's
// SnmpValTicker::AppendToIovec / RocksValCounter64::AppendToIovec
// re-polling the live store on every serialize (spec.md §1 "exports
// live operational counters", §6 "Both are polled at serialization
// time; no callback channel is required").
type LiveCounter64 struct {
	oid    OID
	source storage.Source
	poll   func(storage.Source) (uint64, bool)
}

// NewLiveNamedCounter64 polls source.GetNamedCounter(name) every time
// the value is serialized.
func NewLiveNamedCounter64(oid OID, source storage.Source, name string) *LiveCounter64 {
	return &LiveCounter64{
		oid:    oid,
		source: source,
		poll:   func(s storage.Source) (uint64, bool) { return s.GetNamedCounter(name) },
	}
}

// NewLiveTickCounter64 polls source.GetTick(id) every time the value
// is serialized.
func NewLiveTickCounter64(oid OID, source storage.Source, id int) *LiveCounter64 {
	return &LiveCounter64{
		oid:    oid,
		source: source,
		poll:   func(s storage.Source) (uint64, bool) { return s.GetTick(id) },
	}
}

func (v *LiveCounter64) OID() OID        { return v.oid }
func (v *LiveCounter64) VarType() uint16 { return snmpwire.VarCounter64 }
func (v *LiveCounter64) Ready() bool     { return true }
func (v *LiveCounter64) AppendBinding(dst []byte) []byte {
	val, _ := v.poll(v.source)
	dst = snmpwire.AppendVarBindHeader(dst, snmpwire.VarCounter64, v.oid)
	return snmpwire.AppendUint64Value(dst, val)
}

// AppendErrorBinding appends a noSuchObject or endOfMibView binding
// carrying oid as its identifier — the original's dedicated val_error
// type, folded here into a free function since the error value itself
// carries no payload (spec.md §4.7, §10 supplemented "val_error").
func AppendErrorBinding(dst []byte, varType uint16, oid OID) []byte {
	return snmpwire.AppendVarBindHeader(dst, varType, oid)
}
