// Package fake
// Author: momentics <momentics@gmail.com>
//
// Test doubles for dispatchables and executors.
package fake
