package npm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// FlexBool decodes a JSON boolean OR an integer/numeric-string 0/1 (the proxy-manager's wire quirk, §9) and
// always re-encodes as an integer 0/1, matching "writes always emit 0/1".
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = FlexBool(t)
	case float64:
		*b = FlexBool(t != 0)
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return fmt.Errorf("invalid boolean-as-string %q: %w", t, err)
		}
		*b = FlexBool(n != 0)
	case nil:
		*b = false
	default:
		return fmt.Errorf("invalid boolean value: %v", v)
	}
	return nil
}

func (b FlexBool) MarshalJSON() ([]byte, error) {
	if b {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

// MetaValue is a tagged union over the only value types this controller's meta fields ever carry: strings
// and numeric strings (§9 "Dynamic any JSON in meta").
type MetaValue struct {
	str   string
	isStr bool
	num   int64
	isNum bool
}

func MetaString(s string) MetaValue { return MetaValue{str: s, isStr: true} }
func MetaInt(n int64) MetaValue     { return MetaValue{num: n, isNum: true} }

func (v MetaValue) String() string {
	if v.isStr {
		return v.str
	}
	if v.isNum {
		return strconv.FormatInt(v.num, 10)
	}
	return ""
}

func (v MetaValue) Int() (int64, bool) {
	if v.isNum {
		return v.num, true
	}
	if v.isStr {
		if n, err := strconv.ParseInt(v.str, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func (v *MetaValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case string:
		*v = MetaValue{str: t, isStr: true}
	case float64:
		*v = MetaValue{num: int64(t), isNum: true}
	case bool:
		if t {
			*v = MetaValue{str: "true", isStr: true}
		} else {
			*v = MetaValue{str: "false", isStr: true}
		}
	case nil:
		*v = MetaValue{}
	default:
		// Ignore unrecognized shapes rather than failing the whole resource decode; this controller
		// only ever reads the fields it wrote itself.
		*v = MetaValue{}
	}
	return nil
}

func (v MetaValue) MarshalJSON() ([]byte, error) {
	if v.isNum {
		return json.Marshal(v.num)
	}
	return json.Marshal(v.str)
}

// Meta is the arbitrary JSON object the proxy manager echoes back on reads, and the ownership ledger this
// controller writes on every resource it creates (§3, §9).
type Meta map[string]MetaValue

// Ownership meta keys this controller writes (§3).
const (
	MetaManagedBy      = "managed_by"
	MetaSyncInstanceID = "sync_instance_id"
	MetaNPMURL         = "npm_url"
	MetaContainerID    = "container_id"
	MetaProxyIndex     = "proxy_index"
	MetaStreamIndex    = "stream_index"
	MetaCreatedAt      = "created_at"

	// MetaMirroredFrom and MetaMirroredAt are set on resources written by the resource mirror (§4.8).
	MetaMirroredFrom = "mirrored_from"
	MetaMirroredAt   = "mirrored_at"
)

// ManagedByValue is the fixed token identifying this controller kind in the managed_by meta field.
const ManagedByValue = "npm-docker-sync"

// NewOwnershipMeta builds the meta map this controller writes when creating a proxy or stream resource.
func NewOwnershipMeta(instanceID, npmURL, containerID string, kind string, index int) Meta {
	m := Meta{
		MetaManagedBy:      MetaString(ManagedByValue),
		MetaSyncInstanceID: MetaString(instanceID),
		MetaNPMURL:         MetaString(npmURL),
		MetaContainerID:    MetaString(containerID),
		MetaCreatedAt:      MetaString(time.Now().UTC().Format(time.RFC3339)),
	}
	switch kind {
	case "proxy":
		m[MetaProxyIndex] = MetaInt(int64(index))
	case "stream":
		m[MetaStreamIndex] = MetaInt(int64(index))
	}
	return m
}

// IsOursForInstance reports whether a resource's meta marks it as owned by this controller kind and, if
// sync_instance_id is present, by this specific instance (§3, §4.4 "is-ours-for-instance").
func (m Meta) IsOursForInstance(instanceID string) bool {
	managedBy, ok := m[MetaManagedBy]
	if !ok || managedBy.String() != ManagedByValue {
		return false
	}
	if sid, ok := m[MetaSyncInstanceID]; ok {
		return sid.String() == instanceID
	}
	// Absent sync_instance_id: backward compatibility, treat as ours (§3).
	return true
}

// ContainerID returns the meta.container_id field, if present.
func (m Meta) ContainerID() (string, bool) {
	v, ok := m[MetaContainerID]
	return v.String(), ok
}

// SyncInstanceID returns the meta.sync_instance_id field, if present.
func (m Meta) SyncInstanceID() (string, bool) {
	v, ok := m[MetaSyncInstanceID]
	return v.String(), ok
}

// NPMURL returns the meta.npm_url field, if present.
func (m Meta) NPMURL() (string, bool) {
	v, ok := m[MetaNPMURL]
	return v.String(), ok
}

// Index returns the meta.proxy_index or meta.stream_index field depending on kind.
func (m Meta) Index(kind string) (int, bool) {
	key := MetaProxyIndex
	if kind == "stream" {
		key = MetaStreamIndex
	}
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	n, ok := v.Int()
	return int(n), ok
}
