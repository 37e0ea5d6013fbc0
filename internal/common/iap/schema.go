package iap

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

const subscriberSchema = `{
  "type": "object",
  "required": ["subscriber"],
  "properties": {
    "request_date": {"type": "string"},
    "subscriber": {
      "type": "object",
      "required": ["entitlements"],
      "properties": {
        "original_app_user_id": {"type": "string"},
        "entitlements": {
          "type": "object",
          "additionalProperties": {
            "type": "object",
            "properties": {
              "expires_date": {"type": ["string", "null"]},
              "purchase_date": {"type": ["string", "null"]},
              "product_identifier": {"type": "string"}
            }
          }
        }
      }
    }
  }
}`

const offeringsSchema = `{
  "type": "object",
  "required": ["offerings"],
  "properties": {
    "current_offering_id": {"type": ["string", "null"]},
    "offerings": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["identifier", "packages"],
        "properties": {
          "identifier": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "packages": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["identifier", "platform_product_identifier"],
              "properties": {
                "identifier": {"type": "string", "minLength": 1},
                "platform_product_identifier": {"type": "string", "minLength": 1},
                "package_type": {"type": "string"},
                "price_string": {"type": "string"},
                "price": {"type": "number"},
                "currency_code": {"type": "string"},
                "title": {"type": "string"}
              }
            }
          }
        }
      }
    }
  }
}`

var (
	schemaOnce       sync.Once
	subscriberLoaded *gojsonschema.Schema
	offeringsLoaded  *gojsonschema.Schema
	schemaErr        error
)

func loadSchemas() error {
	schemaOnce.Do(func() {
		subscriberLoaded, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(subscriberSchema))
		if schemaErr != nil {
			return
		}
		offeringsLoaded, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(offeringsSchema))
	})
	return schemaErr
}

func validateSubscriber(body []byte) error {
	if err := loadSchemas(); err != nil {
		return fmt.Errorf("load subscriber schema: %w", err)
	}
	return validateAgainst(subscriberLoaded, body)
}

func validateOfferings(body []byte) error {
	if err := loadSchemas(); err != nil {
		return fmt.Errorf("load offerings schema: %w", err)
	}
	return validateAgainst(offeringsLoaded, body)
}

func validateAgainst(schema *gojsonschema.Schema, body []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return newUnexpectedResponseError(err.Error())
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return newUnexpectedResponseError(strings.Join(msgs, "; "))
}
