package testutil

import (
	"fmt"
	"strings"
)

// NewTestDSN generates a DSN for a shared in-memory SQLite database named after the test.
// Foreign keys are enabled on every pooled connection.
func NewTestDSN(testName string) string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", strings.ReplaceAll(testName, "/", "_"))
}
