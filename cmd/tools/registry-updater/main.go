// cmd/tools/registry-updater/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"purchase-sync/pkg/registry"
)

var registryPath string

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)

	for _, fs := range []*flag.FlagSet{addCmd, updateCmd, validateCmd, listCmd} {
		fs.StringVar(&registryPath, "path", "configs/products.json", "Path to registry file")
	}

	// Add command flags
	idAdd := addCmd.String("id", "", "Store product ID (e.g., prod_PremiumAnnual)")
	displayName := addCmd.String("displayName", "", "Display Name (e.g., Premium Annual)")
	description := addCmd.String("description", "", "Description")
	packageType := addCmd.String("packageType", "", "Package type (annual, monthly, weekly, lifetime)")
	offering := addCmd.String("offering", registry.DefaultOffering, "Offering the product is listed under")
	entitlements := addCmd.String("entitlements", "premium", "Comma separated entitlement IDs granted")

	// Update command flags
	idUpdate := updateCmd.String("id", "", "Product ID to update")
	field := updateCmd.String("field", "", "Field to update (status, packageType, entitlements, etc.)")
	value := updateCmd.String("value", "", "New value for the field")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		addCmd.Parse(os.Args[2:])
		if *idAdd == "" || *displayName == "" {
			fmt.Println("Error: id and displayName are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		product := registry.Product{
			ID:           *idAdd,
			DisplayName:  *displayName,
			Description:  *description,
			PackageType:  *packageType,
			Offering:     *offering,
			Entitlements: registry.SplitList(*entitlements),
			Status:       registry.StatusActive,
		}
		if err := addProduct(product); err != nil {
			fmt.Printf("Error adding product: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added product: %s\n", *idAdd)

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *idUpdate == "" || *field == "" || *value == "" {
			fmt.Println("Error: id, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateProduct(*idUpdate, *field, *value); err != nil {
			fmt.Printf("Error updating product: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated product %s, field %s to %s\n", *idUpdate, *field, *value)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		reg, err := registry.LoadRegistry(registryPath)
		if err == nil {
			err = reg.Validate()
		}
		if err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Registry validation passed. Found %d products.\n", len(reg.Products))

	case "list":
		listCmd.Parse(os.Args[2:])
		reg, err := registry.LoadRegistry(registryPath)
		if err != nil {
			fmt.Printf("Error loading registry: %v\n", err)
			os.Exit(1)
		}
		listProducts(reg)

	case "help":
		fallthrough
	default:
		help()
	}
}

func addProduct(product registry.Product) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to load registry: %w", err)
		}
		reg = registry.New()
	}

	if err := reg.Add(product); err != nil {
		return err
	}
	if err := reg.Validate(); err != nil {
		return err
	}
	return reg.Save(registryPath)
}

func updateProduct(id, field, value string) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	if err := reg.Update(id, field, value); err != nil {
		return err
	}
	if err := reg.Validate(); err != nil {
		return err
	}
	return reg.Save(registryPath)
}

func listProducts(reg *registry.ProductRegistry) {
	products := append([]registry.Product(nil), reg.Products...)
	sort.Slice(products, func(i, j int) bool {
		if products[i].OfferingOrDefault() != products[j].OfferingOrDefault() {
			return products[i].OfferingOrDefault() < products[j].OfferingOrDefault()
		}
		return products[i].ID < products[j].ID
	})
	for _, p := range products {
		status := p.Status
		if status == "" {
			status = registry.StatusActive
		}
		fmt.Printf("%-10s %-24s %-9s %-8s %v\n", p.OfferingOrDefault(), p.ID, p.PackageType, status, p.Entitlements)
	}
}

func help() {
	fmt.Print(`
Usage: registry-updater <command> [flags]

Commands:
  add      Add a product to the registry
  update   Update an existing product's field
  validate Validate the registry file
  list     List registered products by offering
  help     Show this help message

Examples:
  registry-updater add -id prod_PremiumAnnual -displayName "Premium Annual" -packageType annual -entitlements premium
  registry-updater update -id prod_PremiumAnnual -field status -value retired
  registry-updater validate -path configs/products.json

Use 'registry-updater <command> -h' for more information about a command.
`)
}
