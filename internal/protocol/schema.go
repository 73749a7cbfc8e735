package protocol

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var ErrBadMessage = errors.New("bad message")

//go:embed schemas/edit.schema.json
var editSchemaJSON string

var editSchema = mustCompile("edit.schema.json", editSchemaJSON)

func mustCompile(url, src string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, strings.NewReader(src)); err != nil {
		panic(fmt.Sprintf("protocol: add schema %s: %v", url, err))
	}
	s, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("protocol: compile schema %s: %v", url, err))
	}
	return s
}

// DecodeEdit validates raw against the EDIT schema and decodes it.
func DecodeEdit(raw []byte) (EditMsg, error) {
	var msg EditMsg
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	if err := editSchema.Validate(doc); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	if msg.ProtocolVersion != Version {
		return msg, fmt.Errorf("%w: protocol_version %q", ErrBadMessage, msg.ProtocolVersion)
	}
	return msg, nil
}
