package domain

import "strings"

// CategoryGroup is the article group in the categories sheet.
type CategoryGroup string

const (
	GroupInflow  CategoryGroup = "Поступление"
	GroupOutflow CategoryGroup = "Выбытие"
)

// ActivityTechnical marks service articles that never show up in the
// regular category pickers.
const ActivityTechnical = "техническая операция"

// Category is one row of the categories sheet.
type Category struct {
	Name     string
	Group    CategoryGroup
	Activity string
}

// Technical reports whether the category is a service article.
func (c Category) Technical() bool {
	return strings.EqualFold(strings.TrimSpace(c.Activity), ActivityTechnical)
}

// IsTransferCategory recognizes the inter-wallet transfer articles by
// their conventional naming.
func IsTransferCategory(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "перевод") && strings.Contains(lower, "счетами")
}
