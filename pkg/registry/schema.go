// pkg/registry/schema.go
package registry

// ProductRegistry maps store products to the entitlements they grant and
// the package slot they occupy on the paywall.
type ProductRegistry struct {
	Version     string    `json:"version"`
	LastUpdated string    `json:"lastUpdated"`
	Products    []Product `json:"products"`
}

type Product struct {
	ID           string   `json:"id"` // store product id, e.g. a Stripe product
	DisplayName  string   `json:"displayName"`
	Description  string   `json:"description,omitempty"`
	PackageType  string   `json:"packageType,omitempty"` // annual, monthly, weekly, lifetime
	Offering     string   `json:"offering,omitempty"`
	Entitlements []string `json:"entitlements"`
	Status       string   `json:"status,omitempty"` // active, retired
}

const (
	StatusActive  = "active"
	StatusRetired = "retired"

	DefaultOffering = "default"
)

const registrySchema = `{
  "type": "object",
  "required": ["version", "products"],
  "properties": {
    "version": {"type": "string", "minLength": 1},
    "lastUpdated": {"type": "string"},
    "products": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "displayName", "entitlements"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "displayName": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "packageType": {"enum": ["", "annual", "monthly", "weekly", "lifetime"]},
          "offering": {"type": "string"},
          "entitlements": {
            "type": "array",
            "minItems": 1,
            "items": {"type": "string", "minLength": 1}
          },
          "status": {"enum": ["", "active", "retired"]}
        }
      }
    }
  }
}`
