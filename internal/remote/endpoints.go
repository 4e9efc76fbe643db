package remote

import "net/url"

// Backend API paths, relative to the client's BaseURL.
const (
	PathLogin     = "/auth/login"
	PathProfile   = "/auth/profile"
	PathUsers     = "/users"
	PathProviders = "/providers"
	PathBranches  = "/branches"
	PathOrders    = "/orders"
)

func UserPath(id string) string     { return PathUsers + "/" + url.PathEscape(id) }
func ProviderPath(id string) string { return PathProviders + "/" + url.PathEscape(id) }
func BranchPath(id string) string   { return PathBranches + "/" + url.PathEscape(id) }
func OrderPath(id string) string    { return PathOrders + "/" + url.PathEscape(id) }

func ProvidersByBranchPath(branchID string) string {
	return PathProviders + "/by-branch/" + url.PathEscape(branchID)
}

func ProviderSearchPath(q string) string {
	return PathProviders + "/search?q=" + url.QueryEscape(q)
}

func OrdersByBranchPath(branchID string) string {
	return PathOrders + "/by-branch/" + url.PathEscape(branchID)
}

func OrdersByProviderPath(providerID string) string {
	return PathOrders + "/by-provider/" + url.PathEscape(providerID)
}
