package assert

import (
	"reflect"
	"testing"
)

// Equal compares the expected and actual values and logs an error if they are not equal
func Equal(t *testing.T, expected, actual any) {
	//if expected is nil and actual is not nil
	if expected == nil && actual != nil {
		t.Errorf("Expected: %v, Actual: %v", expected, actual)
	} else if expected != nil && actual == nil {
		t.Errorf("Expected: %v, Actual: %v", expected, actual)

	} else if expected == nil && actual == nil {
		//if both are nil, then they are equal
		return
		//if types of expected and actual are different

	} else if !reflect.DeepEqual(expected, actual) {
		t.Errorf("Expected: %v, Actual: %v", expected, actual)
	}

}

// True logs an error if the condition is false
func True(t *testing.T, condition bool) {
	if !condition {
		t.Errorf("Expected: true, Actual: false")
	}
}

// False logs an error if the condition is true
func False(t *testing.T, condition bool) {
	if condition {
		t.Errorf("Expected: false, Actual: true")
	}
}

// Nil logs an error if the value is not nil
func Nil(t *testing.T, value any) {
	if value != nil {
		t.Errorf("Expected: nil, Actual: %v", value)
	}
}

// NotNil logs an error if the value is nil
func NotNil(t *testing.T, value any) {
	if value == nil {
		t.Errorf("Expected: not nil, Actual: nil")
	}
}

// Error logs an error if the error is nil
func Error(t *testing.T, err error) {
	if err == nil {
		t.Errorf("Expected: error, Actual: nil")
	}
}

// NoError logs an error if the error is not nil
func NoError(t *testing.T, err error) {
	if err != nil {
		t.Errorf("Expected: no error, Actual: %v", err)
	}
}

