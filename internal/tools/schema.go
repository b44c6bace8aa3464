package tools

import (
	"bytes"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"folioagent/pkg/errors"
)

// compileSchema compiles a definition's input schema once at registration
func compileSchema(def Definition) (*jsonschema.Schema, error) {
	if len(def.InputSchema) == 0 {
		return nil, nil
	}

	raw, err := json.Marshal(def.InputSchema)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s input schema", def.Name)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s input schema", def.Name)
	}

	url := "mem://tools/" + def.Name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, errors.Wrapf(err, "add %s input schema", def.Name)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, errors.Wrapf(err, "compile %s input schema", def.Name)
	}
	return sch, nil
}

// validateInput checks input against sch. A nil schema accepts anything.
func validateInput(sch *jsonschema.Schema, input json.RawMessage) error {
	if sch == nil {
		return nil
	}
	if len(bytes.TrimSpace(input)) == 0 {
		input = json.RawMessage(`{}`)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(input))
	if err != nil {
		return errors.Wrap(errors.ErrInvalidInput, "input is not valid JSON")
	}
	if err := sch.Validate(inst); err != nil {
		return errors.Wrap(errors.ErrInvalidInput, err.Error())
	}
	return nil
}
