//go:build cgo && !notflite && tflite_external_delegate

package capi

/*
#include <stdlib.h>
#include <tensorflow/lite/c/c_api.h>
#include <tensorflow/lite/c/common.h>

#define kExternalDelegateMaxOptions 256
typedef struct TfLiteExternalDelegateOptions {
  const char* lib_path;
  int count;
  const char* keys[kExternalDelegateMaxOptions];
  const char* values[kExternalDelegateMaxOptions];
  TfLiteStatus (*insert)(struct TfLiteExternalDelegateOptions* options,
                         const char* key, const char* value);
} TfLiteExternalDelegateOptions;

TfLiteStatus TfLiteExternalDelegateOptionsInsert(
    TfLiteExternalDelegateOptions* options, const char* key, const char* value);

TfLiteExternalDelegateOptions TfLiteExternalDelegateOptionsDefault(
    const char* lib_path);

TfLiteDelegate* TfLiteExternalDelegateCreate(
    const TfLiteExternalDelegateOptions* options);

void TfLiteExternalDelegateDelete(TfLiteDelegate* delegate);
*/
import "C"

import (
	"fmt"
	"sort"
	"sync"
	"unsafe"

	"github.com/mattn/go-tflite/delegates"

	"tflitebridge/status"
)

// externalDelegate owns a delegate loaded from a plugin library.
type externalDelegate struct {
	ptr *C.TfLiteDelegate
	mu  sync.Mutex
}

// Delete releases the delegate. Safe to call multiple times.
func (d *externalDelegate) Delete() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ptr != nil {
		C.TfLiteExternalDelegateDelete(d.ptr)
		d.ptr = nil
	}
}

// Ptr returns the TfLiteDelegate pointer.
func (d *externalDelegate) Ptr() unsafe.Pointer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return unsafe.Pointer(d.ptr)
}

// NewExternalDelegate loads a delegate plugin with key/value options. The
// caller owns the delegate and must Delete it after every interpreter using
// it has been released.
func NewExternalDelegate(libPath string, options map[string]string) (delegates.Delegater, error) {
	const op = "delegate.create"

	cPath := C.CString(libPath)
	defer C.free(unsafe.Pointer(cPath))

	opts := C.TfLiteExternalDelegateOptionsDefault(cPath)

	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var cstrs []*C.char
	defer func() {
		for _, s := range cstrs {
			C.free(unsafe.Pointer(s))
		}
	}()
	for _, k := range keys {
		ck, cv := C.CString(k), C.CString(options[k])
		cstrs = append(cstrs, ck, cv)
		if C.TfLiteExternalDelegateOptionsInsert(&opts, ck, cv) != C.kTfLiteOk {
			return nil, status.Wrap(op, status.KindInvalidInput, "cannot set delegate option", fmt.Errorf("%s=%s", k, options[k]))
		}
	}

	d := C.TfLiteExternalDelegateCreate(&opts)
	if d == nil {
		return nil, status.Wrap(op, status.KindNative, "cannot create external delegate", fmt.Errorf("%s", libPath))
	}
	return &externalDelegate{ptr: d}, nil
}
