package behavior

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/acheong08/spr-behavior/pkg/models"
)

// ErrMalformedCall is wrapped by every Decode failure. The call is skipped,
// the stream continues.
var ErrMalformedCall = errors.New("malformed call")

// Syscall is a call decoded into the shape its api implies
type Syscall interface {
	syscall()
}

// OpenCall covers creat, open and openat
type OpenCall struct {
	API    string
	Path   string
	Flags  OpenFlags
	Return int64
}

// IOKind distinguishes read from write
type IOKind int

const (
	IORead IOKind = iota
	IOWrite
)

// IOCall covers read and write
type IOCall struct {
	Kind       IOKind
	Descriptor int
	Return     int64
}

// ConnectCall covers connect
type ConnectCall struct {
	Descriptor int
	Address    []string
	Return     int64
}

// OtherCall is any api the engine does not classify
type OtherCall struct {
	API string
}

func (OpenCall) syscall()    {}
func (IOCall) syscall()      {}
func (ConnectCall) syscall() {}
func (OtherCall) syscall()   {}

// Succeeded reports a non-negative return value
func (c OpenCall) Succeeded() bool { return c.Return >= 0 }

// Succeeded reports a non-negative return value
func (c IOCall) Succeeded() bool { return c.Return >= 0 }

// Decode turns a raw call into its typed variant
func Decode(call *models.Call) (Syscall, error) {
	switch call.API {
	case "creat":
		path, err := stringArg(call, 0)
		if err != nil {
			return nil, err
		}
		ret, err := returnValue(call)
		if err != nil {
			return nil, err
		}
		return OpenCall{API: call.API, Path: path, Flags: CreatFlags, Return: ret}, nil

	case "open", "openat":
		// openat(dirfd, path, flags); open(path, flags)
		first := 0
		if call.API == "openat" {
			first = 1
		}
		path, err := stringArg(call, first)
		if err != nil {
			return nil, err
		}
		flags, err := stringArg(call, first+1)
		if err != nil {
			return nil, err
		}
		ret, err := returnValue(call)
		if err != nil {
			return nil, err
		}
		return OpenCall{API: call.API, Path: path, Flags: ParseOpenFlags(flags), Return: ret}, nil

	case "read", "write":
		fd, err := descriptorArg(call, 0)
		if err != nil {
			return nil, err
		}
		ret, err := returnValue(call)
		if err != nil {
			return nil, err
		}
		kind := IORead
		if call.API == "write" {
			kind = IOWrite
		}
		return IOCall{Kind: kind, Descriptor: fd, Return: ret}, nil

	case "connect":
		fd, err := descriptorArg(call, 0)
		if err != nil {
			return nil, err
		}
		v, ok := call.Arg(1)
		if !ok || !v.IsList() {
			return nil, fmt.Errorf("%w: connect address is not a list", ErrMalformedCall)
		}
		if v.Malformed() {
			return nil, fmt.Errorf("%w: connect address %v holds a non-scalar element", ErrMalformedCall, v.List())
		}
		// connect commonly fails with EINPROGRESS; the endpoint still counts
		ret, _ := call.ReturnValue.Int()
		return ConnectCall{Descriptor: fd, Address: v.List(), Return: ret}, nil
	}

	return OtherCall{API: call.API}, nil
}

func stringArg(call *models.Call, n int) (string, error) {
	v, ok := call.Arg(n)
	if !ok {
		return "", fmt.Errorf("%w: %s missing argument p%d", ErrMalformedCall, call.API, n)
	}
	if v.IsList() {
		return "", fmt.Errorf("%w: %s argument p%d is compound", ErrMalformedCall, call.API, n)
	}
	if v.Malformed() {
		return "", fmt.Errorf("%w: %s argument p%d is not a scalar", ErrMalformedCall, call.API, n)
	}
	return v.String(), nil
}

func descriptorArg(call *models.Call, n int) (int, error) {
	s, err := stringArg(call, n)
	if err != nil {
		return 0, err
	}
	fd, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s descriptor %q: %v", ErrMalformedCall, call.API, s, err)
	}
	return fd, nil
}

func returnValue(call *models.Call) (int64, error) {
	ret, err := call.ReturnValue.Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %s return value %q: %v", ErrMalformedCall, call.API, call.ReturnValue.String(), err)
	}
	return ret, nil
}
