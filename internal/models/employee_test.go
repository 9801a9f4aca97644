package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmployeeFullName(t *testing.T) {
	emp := Employee{FirstName: "Grace", LastName: "Hopper"}
	assert.Equal(t, "Grace Hopper", emp.FullName())
}
