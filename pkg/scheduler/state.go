package scheduler

import (
	"bytes"
	"encoding/base64"
	"encoding/gob"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/tokmz/apsched/pkg/errors"
)

// Stateful 可导出并还原状态的对象，持久化时以类引用加状态的形式保存
type Stateful interface {
	ClassRef() string
	GetState() (map[string]any, error)
	SetState(state map[string]any) error
}

func init() {
	gob.Register(time.Time{})
	gob.Register(time.Duration(0))
	gob.Register(uuid.UUID{})
	gob.Register(map[string]any{})
	gob.Register([]any{})
}

// RegisterGobType 注册可通过 gob 兜底序列化的类型
// gob 兜底格式只应用于可信输入
func RegisterGobType(value any) {
	gob.Register(value)
}

// encodeValue 将任意值转换为可 JSON 序列化的形式
func (r *Registry) encodeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil, bool, string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return val, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			enc, err := r.encodeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = enc
		}
		return out, nil
	case map[string]any:
		return r.encodeMap(val)
	case JobState:
		return r.encodeMap(val)
	case Stateful:
		state, err := val.GetState()
		if err != nil {
			return nil, ErrUnserializable.WithError(err)
		}
		enc, err := r.encodeMap(state)
		if err != nil {
			return nil, err
		}
		return map[string]any{classKey: val.ClassRef(), stateKey: enc}, nil
	default:
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
			return nil, ErrUnserializable.WithMessagef("cannot serialize value of type %T", v).WithError(err)
		}
		return map[string]any{pickleKey: base64.StdEncoding.EncodeToString(buf.Bytes())}, nil
	}
}

func (r *Registry) encodeMap(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, item := range m {
		enc, err := r.encodeValue(item)
		if err != nil {
			return nil, err
		}
		out[k] = enc
	}
	return out, nil
}

// decodeValue encodeValue 的逆过程
func (r *Registry) decodeValue(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		return val.Float64()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			dec, err := r.decodeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = dec
		}
		return out, nil
	case map[string]any:
		if ref, ok := val[classKey].(string); ok {
			return r.decodeStateful(ref, val[stateKey])
		}
		if data, ok := val[pickleKey].(string); ok {
			return decodeGob(data)
		}
		return r.decodeMap(val)
	default:
		return val, nil
	}
}

func (r *Registry) decodeMap(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, item := range m {
		dec, err := r.decodeValue(item)
		if err != nil {
			return nil, err
		}
		out[k] = dec
	}
	return out, nil
}

func (r *Registry) decodeStateful(ref string, rawState any) (Stateful, error) {
	obj, err := r.newStateful(ref)
	if err != nil {
		return nil, err
	}
	stateMap, ok := rawState.(map[string]any)
	if !ok {
		return nil, ErrCorruptState.WithMessagef("state of %s is not an object", ref)
	}
	state, err := r.decodeMap(stateMap)
	if err != nil {
		return nil, err
	}
	if err := obj.SetState(state); err != nil {
		return nil, ErrCorruptState.WithMessagef("cannot restore %s", ref).WithError(err)
	}
	return obj, nil
}

func decodeGob(data string) (any, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, ErrCorruptState.WithError(err)
	}
	var v any
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&v); err != nil {
		return nil, ErrCorruptState.WithError(err)
	}
	return v, nil
}

// EncodeJob 将任务转换为可 JSON 序列化的状态
func (r *Registry) EncodeJob(job *Job) (map[string]any, error) {
	state, err := job.State()
	if err != nil {
		return nil, err
	}
	return r.encodeMap(state)
}

// DecodeJob 由 EncodeJob 的结果还原任务，并解析可调用对象
func (r *Registry) DecodeJob(encoded map[string]any) (*Job, error) {
	state, err := r.decodeMap(encoded)
	if err != nil {
		return nil, err
	}
	job := &Job{}
	if err := job.SetState(JobState(state)); err != nil {
		return nil, err
	}
	fn, err := r.Callable(job.FuncRef)
	if err != nil {
		return nil, ErrCorruptState.WithMessagef("job %s references an unknown callable", job.ID).WithError(err)
	}
	job.fn = fn
	return job, nil
}

// MarshalJob 将任务序列化为 JSON
func (r *Registry) MarshalJob(job *Job) ([]byte, error) {
	encoded, err := r.EncodeJob(job)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(encoded)
	if err != nil {
		return nil, ErrUnserializable.WithError(err)
	}
	return data, nil
}

// UnmarshalJob 由 JSON 还原任务，任何失败均视为状态损坏
func (r *Registry) UnmarshalJob(data []byte) (*Job, error) {
	var encoded map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&encoded); err != nil {
		return nil, ErrCorruptState.WithError(err)
	}
	if encoded == nil {
		return nil, ErrCorruptState.WithMessage("job state is empty")
	}
	job, err := r.DecodeJob(encoded)
	if err != nil {
		if errors.Is(err, ErrCorruptState) {
			return nil, err
		}
		return nil, ErrCorruptState.WithError(err)
	}
	return job, nil
}
