package query

import (
	"QueryAegis/internal/core/port"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// documentSchema 描述查询文档的结构。类型、键前缀与数据集相关的检查在 Parse 中完成。
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["WHERE", "OPTIONS"],
  "additionalProperties": false,
  "properties": {
    "WHERE": {
      "type": "object",
      "anyOf": [
        {"maxProperties": 0},
        {"$ref": "#/definitions/filter"}
      ]
    },
    "OPTIONS": {
      "type": "object",
      "required": ["COLUMNS"],
      "additionalProperties": false,
      "properties": {
        "COLUMNS": {
          "type": "array",
          "minItems": 1,
          "items": {"type": "string"}
        },
        "ORDER": {
          "oneOf": [
            {"type": "string"},
            {
              "type": "object",
              "required": ["dir", "keys"],
              "additionalProperties": false,
              "properties": {
                "dir": {"enum": ["UP", "DOWN"]},
                "keys": {
                  "type": "array",
                  "minItems": 1,
                  "items": {"type": "string"}
                }
              }
            }
          ]
        }
      }
    }
  },
  "definitions": {
    "filter": {
      "type": "object",
      "minProperties": 1,
      "maxProperties": 1,
      "additionalProperties": false,
      "properties": {
        "AND": {"$ref": "#/definitions/filterList"},
        "OR":  {"$ref": "#/definitions/filterList"},
        "NOT": {"$ref": "#/definitions/filter"},
        "LT":  {"$ref": "#/definitions/mcomparison"},
        "GT":  {"$ref": "#/definitions/mcomparison"},
        "EQ":  {"$ref": "#/definitions/mcomparison"},
        "IS":  {"$ref": "#/definitions/scomparison"}
      }
    },
    "filterList": {
      "type": "array",
      "minItems": 1,
      "items": {"$ref": "#/definitions/filter"}
    },
    "mcomparison": {
      "type": "object",
      "minProperties": 1,
      "maxProperties": 1,
      "additionalProperties": {"type": "number"}
    },
    "scomparison": {
      "type": "object",
      "minProperties": 1,
      "maxProperties": 1,
      "additionalProperties": {"type": "string"}
    }
  }
}`

// maxReportedErrors 错误信息中最多列出的结构错误条数
const maxReportedErrors = 3

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(documentSchema))
})

// validateStructure 用 JSON Schema 检查文档结构，不涉及任何数据集。
func validateStructure(doc any) error {
	sch, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("编译查询 JSON Schema 失败: %w", err)
	}
	result, err := sch.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: 结构校验出错: %v", port.ErrInvalidQuery, err)
	}
	if result.Valid() {
		return nil
	}

	var errs []string
	for i, desc := range result.Errors() {
		if i == maxReportedErrors {
			errs = append(errs, "...")
			break
		}
		errs = append(errs, desc.String())
	}
	return fmt.Errorf("%w: %s", port.ErrInvalidQuery, strings.Join(errs, "; "))
}
