package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarshalCanonicalSortsKeys(t *testing.T) {
	fields := map[string]string{
		"quantity": "10",
		"key":      "A",
		"ref":      "",
		"price":    "19.90",
	}

	got := string(MarshalCanonical(fields))
	assert.Equal(t, `{"key":"A","price":"19.90","quantity":"10","ref":""}`, got)
}

func TestMarshalCanonicalOrderIndependent(t *testing.T) {
	a := map[string]string{}
	a["key"] = "SKU-1"
	a["price"] = "5.00"
	a["quantity"] = "3"

	b := map[string]string{}
	b["quantity"] = "3"
	b["key"] = "SKU-1"
	b["price"] = "5.00"

	assert.Equal(t, MarshalCanonical(a), MarshalCanonical(b))
}

func TestMarshalCanonicalNFCNormalizes(t *testing.T) {
	// "é" composed (U+00E9) vs decomposed (e + U+0301)
	composed := map[string]string{"key": "café"}
	decomposed := map[string]string{"key": "café"}

	assert.Equal(t, MarshalCanonical(composed), MarshalCanonical(decomposed))
}

func TestMarshalCanonicalNoHTMLEscaping(t *testing.T) {
	fields := map[string]string{"ref": "A<B>&C"}

	got := string(MarshalCanonical(fields))
	assert.Equal(t, `{"ref":"A<B>&C"}`, got)
}

func TestMarshalCanonicalEmpty(t *testing.T) {
	assert.Equal(t, "{}", string(MarshalCanonical(nil)))
	assert.Equal(t, "{}", string(MarshalCanonical(map[string]string{})))
}
