// Package errors provides examples of structured error handling in Stratum.
package errors_test

import (
	"fmt"
	"io"

	"github.com/ajitpratap0/stratum/pkg/errors"
)

// Example demonstrates basic error creation and wrapping.
func Example() {
	err := errors.New(errors.ErrorTypeNotFound, "no such container")

	// Add context details
	err = err.WithDetail("container", "results.strm").
		WithDetail("connector", "native")

	fmt.Println(err.Error())

	// Output:
	// not_found: no such container
}

// ExampleWrap shows how to wrap a backend failure with context.
func ExampleWrap() {
	originalErr := io.ErrUnexpectedEOF

	err := errors.Wrap(originalErr, errors.ErrorTypeBackend, "container is truncated").
		WithDetail("container", "results.strm")

	if errors.IsType(err, errors.ErrorTypeBackend) {
		fmt.Println("This is a backend error")
	}

	// Output:
	// This is a backend error
}

// ExampleIsUnsupported shows how callers distinguish a connector that does
// not implement an operation from one that failed to perform it.
func ExampleIsUnsupported() {
	err := errors.New(errors.ErrorTypeUnsupported, "connector badger does not support link iterate")

	if errors.IsUnsupported(err) {
		fmt.Println("Fall back or skip the operation")
	}

	// Output:
	// Fall back or skip the operation
}

// ExampleIsType demonstrates checking error types through wrapping.
func ExampleIsType() {
	inner := errors.New(errors.ErrorTypeNotFound, "no such group /data")
	wrapped := errors.Wrap(inner, errors.ErrorTypeBackend, "group open failed")

	fmt.Printf("Wrapped error is backend type: %v\n", errors.IsType(wrapped, errors.ErrorTypeBackend))
	fmt.Printf("Wrapped error is not_found type: %v\n", errors.IsType(wrapped, errors.ErrorTypeNotFound))

	// Output:
	// Wrapped error is backend type: true
	// Wrapped error is not_found type: false
}

// Example_errorStack shows how the dispatch layer reports failures on an
// error stack alongside the returned error.
func Example_errorStack() {
	stack := errors.NewStack()

	stack.Raise(errors.New(errors.ErrorTypeBackend, "write failed"))
	stack.RaiseOnUnwind(errors.New(errors.ErrorTypeBackend, "close failed during cleanup"))

	for _, entry := range stack.Entries() {
		if entry.Unwind {
			fmt.Printf("cleanup: %s\n", entry.Err.Message)
		} else {
			fmt.Printf("primary: %s\n", entry.Err.Message)
		}
	}

	stack.Clear()
	fmt.Println("empty:", stack.Empty())

	// Output:
	// primary: write failed
	// cleanup: close failed during cleanup
	// empty: true
}
