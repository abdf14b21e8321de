// Copyright 2021, Square, Inc.

package stack

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v2"
)

const (
	FORMAT_JSON = "json"
	FORMAT_YAML = "yaml"
)

// Template is a CloudFormation resource template.
type Template struct {
	AWSTemplateFormatVersion string               `json:"AWSTemplateFormatVersion" yaml:"AWSTemplateFormatVersion"`
	Description              string               `json:"Description,omitempty" yaml:"Description,omitempty"`
	Parameters               map[string]Parameter `json:"Parameters,omitempty" yaml:"Parameters,omitempty"`
	Resources                map[string]Resource  `json:"Resources" yaml:"Resources"`
	Outputs                  map[string]Output    `json:"Outputs,omitempty" yaml:"Outputs,omitempty"`
}

type Parameter struct {
	Type        string `json:"Type" yaml:"Type"`
	Description string `json:"Description,omitempty" yaml:"Description,omitempty"`
}

type Resource struct {
	Type       string                 `json:"Type" yaml:"Type"`
	Properties map[string]interface{} `json:"Properties" yaml:"Properties"`
	DependsOn  []string               `json:"DependsOn,omitempty" yaml:"DependsOn,omitempty"`
}

type Output struct {
	Description string      `json:"Description,omitempty" yaml:"Description,omitempty"`
	Value       interface{} `json:"Value" yaml:"Value"`
}

func newTemplate(description string) *Template {
	return &Template{
		AWSTemplateFormatVersion: "2010-09-09",
		Description:              description,
		Parameters:               map[string]Parameter{},
		Resources:                map[string]Resource{},
		Outputs:                  map[string]Output{},
	}
}

// ResourcesOfType returns the logical IDs of resources of type typ.
func (t *Template) ResourcesOfType(typ string) []string {
	ids := []string{}
	for id, r := range t.Resources {
		if r.Type == typ {
			ids = append(ids, id)
		}
	}
	return ids
}

// Write writes the template to w in the given format, json or yaml.
func (t *Template) Write(w io.Writer, format string) error {
	var bytes []byte
	var err error
	switch format {
	case FORMAT_JSON, "":
		if bytes, err = json.MarshalIndent(t, "", "  "); err == nil {
			bytes = append(bytes, '\n')
		}
	case FORMAT_YAML:
		bytes, err = yaml.Marshal(t)
	default:
		return fmt.Errorf("invalid template format %s, expected %s or %s", format, FORMAT_JSON, FORMAT_YAML)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(bytes)
	return err
}

// --------------------------------------------------------------------------
// Intrinsic functions

func getAtt(logicalID, attr string) map[string]interface{} {
	return map[string]interface{}{"Fn::GetAtt": []interface{}{logicalID, attr}}
}

func ref(logicalID string) map[string]interface{} {
	return map[string]interface{}{"Ref": logicalID}
}
