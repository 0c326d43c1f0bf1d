package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThrownLemon/snow-mcp/internal/audit"
	"github.com/ThrownLemon/snow-mcp/internal/servicenow"
)

const (
	catalogItemTable     = "sc_cat_item"
	catalogCategoryTable = "sc_category"
	catalogVariableTable = "item_option_new"
)

// CatalogTools operates on service catalog items, categories, and item
// variables.
type CatalogTools struct {
	client  servicenow.Client
	auditor *audit.Publisher
	logger  *slog.Logger
}

func NewCatalogTools(client servicenow.Client, auditor *audit.Publisher, logger *slog.Logger) *CatalogTools {
	return &CatalogTools{
		client:  client,
		auditor: auditor,
		logger:  logger.With("component", "catalog-tools"),
	}
}

type CatalogItem struct {
	SysID            string `json:"sys_id"`
	Name             string `json:"name"`
	ShortDescription string `json:"short_description,omitempty"`
	Category         string `json:"category,omitempty"`
	Price            string `json:"price,omitempty"`
	Active           bool   `json:"active"`
	Order            string `json:"order,omitempty"`
}

func catalogItemFromRecord(r servicenow.Record) CatalogItem {
	return CatalogItem{
		SysID:            r.String("sys_id"),
		Name:             r.String("name"),
		ShortDescription: r.String("short_description"),
		Category:         r.DisplayString("category"),
		Price:            r.String("price"),
		Active:           r.Bool("active"),
		Order:            r.String("order"),
	}
}

type ListCatalogItemsParams struct {
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
	Category string `json:"category,omitempty"`
	Query    string `json:"query,omitempty"`
	Active   *bool  `json:"active,omitempty"`
}

type ListCatalogItemsResult struct {
	Result
	Items  []CatalogItem `json:"items"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func (t *CatalogTools) ListCatalogItems(ctx context.Context, p ListCatalogItemsParams) ListCatalogItemsResult {
	limit := clampLimit(p.Limit, 10, 100)

	qb := servicenow.NewQueryBuilder()
	active := true
	if p.Active != nil {
		active = *p.Active
	}
	qb.WhereEquals("active", boolString(active))
	if p.Category != "" {
		qb.WhereEquals("category", p.Category)
	}
	if p.Query != "" {
		qb.WhereLike("short_description", p.Query).OrWhereLike("name", p.Query)
	}

	records, total, err := t.client.ListRecords(ctx, catalogItemTable, servicenow.ListOptions{
		Query:        qb.Build(),
		Limit:        limit,
		Offset:       p.Offset,
		DisplayValue: "true",
	})
	if err != nil {
		return ListCatalogItemsResult{Result: fail("Failed to list catalog items: %v", err)}
	}

	items := make([]CatalogItem, 0, len(records))
	for _, r := range records {
		items = append(items, catalogItemFromRecord(r))
	}
	if total < 0 {
		total = len(items)
	}
	return ListCatalogItemsResult{
		Result: ok("Retrieved %d catalog items", len(items)),
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: p.Offset,
	}
}

// CatalogVariable is a form variable attached to a catalog item.
type CatalogVariable struct {
	SysID        string `json:"sys_id"`
	Name         string `json:"name"`
	Label        string `json:"label"`
	Type         string `json:"type"`
	Mandatory    bool   `json:"mandatory"`
	DefaultValue string `json:"default_value,omitempty"`
	HelpText     string `json:"help_text,omitempty"`
	Order        string `json:"order,omitempty"`
}

type CatalogItemDetail struct {
	CatalogItem
	Description string            `json:"description,omitempty"`
	Variables   []CatalogVariable `json:"variables"`
}

type GetCatalogItemParams struct {
	ItemID string `json:"item_id"`
}

type GetCatalogItemResult struct {
	Result
	Item *CatalogItemDetail `json:"item,omitempty"`
}

func (t *CatalogTools) GetCatalogItem(ctx context.Context, p GetCatalogItemParams) GetCatalogItemResult {
	if p.ItemID == "" {
		return GetCatalogItemResult{Result: fail("item_id is required")}
	}

	rec, err := servicenow.ResolveRecord(ctx, t.client, catalogItemTable, p.ItemID, "name")
	if err != nil {
		return GetCatalogItemResult{Result: resolveFail(err, "Catalog item", p.ItemID)}
	}
	sysID := rec.String("sys_id")

	vars, _, err := t.client.ListRecords(ctx, catalogVariableTable, servicenow.ListOptions{
		Query:   fmt.Sprintf("cat_item=%s", sysID),
		Limit:   1000,
		OrderBy: "order",
	})
	if err != nil {
		return GetCatalogItemResult{Result: fail("Failed to fetch item variables: %v", err)}
	}

	detail := &CatalogItemDetail{
		CatalogItem: catalogItemFromRecord(rec),
		Description: rec.String("description"),
		Variables:   make([]CatalogVariable, 0, len(vars)),
	}
	for _, v := range vars {
		detail.Variables = append(detail.Variables, CatalogVariable{
			SysID:        v.String("sys_id"),
			Name:         v.String("name"),
			Label:        v.String("question_text"),
			Type:         v.String("type"),
			Mandatory:    v.Bool("mandatory"),
			DefaultValue: v.String("default_value"),
			HelpText:     v.String("help_text"),
			Order:        v.String("order"),
		})
	}
	return GetCatalogItemResult{
		Result: ok("Retrieved catalog item: %s", detail.Name),
		Item:   detail,
	}
}

type UpdateCatalogItemParams struct {
	ItemID           string `json:"item_id"`
	Name             string `json:"name,omitempty"`
	ShortDescription string `json:"short_description,omitempty"`
	Description      string `json:"description,omitempty"`
	Category         string `json:"category,omitempty"`
	Price            string `json:"price,omitempty"`
	Active           *bool  `json:"active,omitempty"`
	Order            string `json:"order,omitempty"`
}

type CatalogItemResult struct {
	Result
	ItemID string `json:"item_id,omitempty"`
}

func (t *CatalogTools) UpdateCatalogItem(ctx context.Context, p UpdateCatalogItemParams) CatalogItemResult {
	if p.ItemID == "" {
		return CatalogItemResult{Result: fail("item_id is required")}
	}

	rec := servicenow.Record{}
	setIf(rec, "name", p.Name)
	setIf(rec, "short_description", p.ShortDescription)
	setIf(rec, "description", p.Description)
	setIf(rec, "category", p.Category)
	setIf(rec, "price", p.Price)
	setIf(rec, "order", p.Order)
	if p.Active != nil {
		rec["active"] = boolString(*p.Active)
	}
	if len(rec) == 0 {
		return CatalogItemResult{Result: fail("No fields to update")}
	}

	sysID, err := servicenow.ResolveSysID(ctx, t.client, catalogItemTable, p.ItemID, "name")
	if err != nil {
		return CatalogItemResult{Result: resolveFail(err, "Catalog item", p.ItemID)}
	}

	if _, err := t.client.UpdateRecord(ctx, catalogItemTable, sysID, rec); err != nil {
		return CatalogItemResult{Result: fail("Failed to update catalog item: %v", err)}
	}

	t.auditor.Emit(audit.Event{
		Action: audit.ActionUpdate,
		Table:  catalogItemTable,
		SysID:  sysID,
		Tool:   "update_catalog_item",
	})
	return CatalogItemResult{Result: ok("Catalog item updated successfully"), ItemID: sysID}
}

type CatalogCategory struct {
	SysID       string `json:"sys_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Parent      string `json:"parent,omitempty"`
	Active      bool   `json:"active"`
}

type ListCatalogCategoriesParams struct {
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
	Query  string `json:"query,omitempty"`
	Active *bool  `json:"active,omitempty"`
}

type ListCatalogCategoriesResult struct {
	Result
	Categories []CatalogCategory `json:"categories"`
	Total      int               `json:"total"`
	Limit      int               `json:"limit"`
	Offset     int               `json:"offset"`
}

func (t *CatalogTools) ListCatalogCategories(ctx context.Context, p ListCatalogCategoriesParams) ListCatalogCategoriesResult {
	limit := clampLimit(p.Limit, 10, 100)

	qb := servicenow.NewQueryBuilder()
	active := true
	if p.Active != nil {
		active = *p.Active
	}
	qb.WhereEquals("active", boolString(active))
	if p.Query != "" {
		qb.WhereLike("title", p.Query).OrWhereLike("description", p.Query)
	}

	records, total, err := t.client.ListRecords(ctx, catalogCategoryTable, servicenow.ListOptions{
		Query:  qb.Build(),
		Limit:  limit,
		Offset: p.Offset,
	})
	if err != nil {
		return ListCatalogCategoriesResult{Result: fail("Failed to list catalog categories: %v", err)}
	}

	categories := make([]CatalogCategory, 0, len(records))
	for _, r := range records {
		categories = append(categories, CatalogCategory{
			SysID:       r.String("sys_id"),
			Title:       r.String("title"),
			Description: r.String("description"),
			Parent:      r.String("parent"),
			Active:      r.Bool("active"),
		})
	}
	if total < 0 {
		total = len(categories)
	}
	return ListCatalogCategoriesResult{
		Result:     ok("Retrieved %d catalog categories", len(categories)),
		Categories: categories,
		Total:      total,
		Limit:      limit,
		Offset:     p.Offset,
	}
}

type CreateCatalogCategoryParams struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Parent      string `json:"parent,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Active      *bool  `json:"active,omitempty"`
	Order       string `json:"order,omitempty"`
}

type CatalogCategoryResult struct {
	Result
	CategoryID string `json:"category_id,omitempty"`
}

func (t *CatalogTools) CreateCatalogCategory(ctx context.Context, p CreateCatalogCategoryParams) CatalogCategoryResult {
	if p.Title == "" {
		return CatalogCategoryResult{Result: fail("title is required")}
	}

	active := true
	if p.Active != nil {
		active = *p.Active
	}
	rec := servicenow.Record{
		"title":  p.Title,
		"active": boolString(active),
	}
	setIf(rec, "description", p.Description)
	setIf(rec, "parent", p.Parent)
	setIf(rec, "icon", p.Icon)
	setIf(rec, "order", p.Order)

	created, err := t.client.CreateRecord(ctx, catalogCategoryTable, rec)
	if err != nil {
		return CatalogCategoryResult{Result: fail("Failed to create catalog category: %v", err)}
	}

	sysID := created.String("sys_id")
	t.auditor.Emit(audit.Event{
		Action: audit.ActionCreate,
		Table:  catalogCategoryTable,
		SysID:  sysID,
		Tool:   "create_catalog_category",
	})
	return CatalogCategoryResult{
		Result:     ok("Catalog category created successfully"),
		CategoryID: sysID,
	}
}

type UpdateCatalogCategoryParams struct {
	CategoryID  string `json:"category_id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Parent      string `json:"parent,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Active      *bool  `json:"active,omitempty"`
	Order       string `json:"order,omitempty"`
}

func (t *CatalogTools) UpdateCatalogCategory(ctx context.Context, p UpdateCatalogCategoryParams) CatalogCategoryResult {
	if p.CategoryID == "" {
		return CatalogCategoryResult{Result: fail("category_id is required")}
	}

	rec := servicenow.Record{}
	setIf(rec, "title", p.Title)
	setIf(rec, "description", p.Description)
	setIf(rec, "parent", p.Parent)
	setIf(rec, "icon", p.Icon)
	setIf(rec, "order", p.Order)
	if p.Active != nil {
		rec["active"] = boolString(*p.Active)
	}
	if len(rec) == 0 {
		return CatalogCategoryResult{Result: fail("No fields to update")}
	}

	sysID, err := servicenow.ResolveSysID(ctx, t.client, catalogCategoryTable, p.CategoryID, "title")
	if err != nil {
		return CatalogCategoryResult{Result: resolveFail(err, "Catalog category", p.CategoryID)}
	}

	if _, err := t.client.UpdateRecord(ctx, catalogCategoryTable, sysID, rec); err != nil {
		return CatalogCategoryResult{Result: fail("Failed to update catalog category: %v", err)}
	}

	t.auditor.Emit(audit.Event{
		Action: audit.ActionUpdate,
		Table:  catalogCategoryTable,
		SysID:  sysID,
		Tool:   "update_catalog_category",
	})
	return CatalogCategoryResult{Result: ok("Catalog category updated successfully"), CategoryID: sysID}
}

type MoveCatalogItemsParams struct {
	ItemIDs          []string `json:"item_ids"`
	TargetCategoryID string   `json:"target_category_id"`
}

type MoveCatalogItemsResult struct {
	Result
	Moved  []string          `json:"moved"`
	Failed map[string]string `json:"failed,omitempty"`
}

// MoveCatalogItems reassigns items to a category. Items that cannot be
// moved are reported individually; the operation succeeds when at least one
// item moved.
func (t *CatalogTools) MoveCatalogItems(ctx context.Context, p MoveCatalogItemsParams) MoveCatalogItemsResult {
	if len(p.ItemIDs) == 0 {
		return MoveCatalogItemsResult{Result: fail("item_ids is required")}
	}
	if p.TargetCategoryID == "" {
		return MoveCatalogItemsResult{Result: fail("target_category_id is required")}
	}

	targetID, err := servicenow.ResolveSysID(ctx, t.client, catalogCategoryTable, p.TargetCategoryID, "title")
	if err != nil {
		return MoveCatalogItemsResult{Result: resolveFail(err, "Catalog category", p.TargetCategoryID)}
	}

	res := MoveCatalogItemsResult{
		Moved:  make([]string, 0, len(p.ItemIDs)),
		Failed: make(map[string]string),
	}
	for _, id := range p.ItemIDs {
		sysID, err := servicenow.ResolveSysID(ctx, t.client, catalogItemTable, id, "name")
		if err != nil {
			res.Failed[id] = resolveFail(err, "Catalog item", id).Message
			continue
		}
		if _, err := t.client.UpdateRecord(ctx, catalogItemTable, sysID, servicenow.Record{"category": targetID}); err != nil {
			res.Failed[id] = err.Error()
			continue
		}
		t.auditor.Emit(audit.Event{
			Action: audit.ActionUpdate,
			Table:  catalogItemTable,
			SysID:  sysID,
			Tool:   "move_catalog_items",
		})
		res.Moved = append(res.Moved, sysID)
	}
	if len(res.Failed) == 0 {
		res.Failed = nil
	}

	switch {
	case len(res.Moved) == 0:
		res.Result = fail("Failed to move any of the %d items", len(p.ItemIDs))
	case res.Failed != nil:
		res.Result = ok("Moved %d of %d items; %d failed", len(res.Moved), len(p.ItemIDs), len(res.Failed))
	default:
		res.Result = ok("Moved %d items successfully", len(res.Moved))
	}
	return res
}

// Recommendation types accepted by GetOptimizationRecommendations.
const (
	RecInactiveItems    = "inactive_items"
	RecPoorDescriptions = "poor_descriptions"
	RecLowUsage         = "low_usage"
)

// shortDescriptionMinLen is the length below which a short description is
// considered too thin to help users find an item.
const shortDescriptionMinLen = 30

type OptimizationParams struct {
	RecommendationTypes []string `json:"recommendation_types,omitempty"`
	CategoryID          string   `json:"category_id,omitempty"`
}

type Recommendation struct {
	Type        string        `json:"type"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Items       []CatalogItem `json:"items"`
}

type OptimizationResult struct {
	Result
	Recommendations []Recommendation `json:"recommendations"`
}

// GetOptimizationRecommendations scans the catalog for maintenance
// opportunities: retired items still cluttering categories, items whose
// descriptions are too thin to search on, and items nobody has touched in
// months.
func (t *CatalogTools) GetOptimizationRecommendations(ctx context.Context, p OptimizationParams) OptimizationResult {
	types := p.RecommendationTypes
	if len(types) == 0 {
		types = []string{RecInactiveItems, RecPoorDescriptions, RecLowUsage}
	}

	res := OptimizationResult{Recommendations: make([]Recommendation, 0, len(types))}
	for _, typ := range types {
		var (
			rec Recommendation
			err error
		)
		switch typ {
		case RecInactiveItems:
			rec, err = t.inactiveItems(ctx, p.CategoryID)
		case RecPoorDescriptions:
			rec, err = t.poorDescriptions(ctx, p.CategoryID)
		case RecLowUsage:
			rec, err = t.lowUsageItems(ctx, p.CategoryID)
		default:
			return OptimizationResult{Result: fail("Unknown recommendation type: %s", typ)}
		}
		if err != nil {
			return OptimizationResult{Result: fail("Failed to analyze catalog: %v", err)}
		}
		res.Recommendations = append(res.Recommendations, rec)
	}
	res.Result = ok("Generated %d recommendations", len(res.Recommendations))
	return res
}

func (t *CatalogTools) fetchItems(ctx context.Context, qb *servicenow.QueryBuilder, category string) ([]servicenow.Record, error) {
	if category != "" {
		qb.WhereEquals("category", category)
	}
	records, _, err := t.client.ListRecords(ctx, catalogItemTable, servicenow.ListOptions{
		Query: qb.Build(),
		Limit: 1000,
	})
	return records, err
}

func (t *CatalogTools) inactiveItems(ctx context.Context, category string) (Recommendation, error) {
	qb := servicenow.NewQueryBuilder().WhereEquals("active", "false")
	records, err := t.fetchItems(ctx, qb, category)
	if err != nil {
		return Recommendation{}, err
	}
	items := make([]CatalogItem, 0, len(records))
	for _, r := range records {
		items = append(items, catalogItemFromRecord(r))
	}
	return Recommendation{
		Type:        RecInactiveItems,
		Title:       "Inactive catalog items",
		Description: fmt.Sprintf("%d items are inactive and could be retired or reactivated", len(items)),
		Items:       items,
	}, nil
}

func (t *CatalogTools) poorDescriptions(ctx context.Context, category string) (Recommendation, error) {
	qb := servicenow.NewQueryBuilder().WhereEquals("active", "true")
	records, err := t.fetchItems(ctx, qb, category)
	if err != nil {
		return Recommendation{}, err
	}
	items := make([]CatalogItem, 0)
	for _, r := range records {
		if len(r.String("short_description")) < shortDescriptionMinLen {
			items = append(items, catalogItemFromRecord(r))
		}
	}
	return Recommendation{
		Type:        RecPoorDescriptions,
		Title:       "Items with poor descriptions",
		Description: fmt.Sprintf("%d items have missing or very short descriptions", len(items)),
		Items:       items,
	}, nil
}

func (t *CatalogTools) lowUsageItems(ctx context.Context, category string) (Recommendation, error) {
	qb := servicenow.NewQueryBuilder().
		WhereEquals("active", "true").
		WhereLessThan("sys_updated_on", "javascript:gs.monthsAgoStart(6)")
	records, err := t.fetchItems(ctx, qb, category)
	if err != nil {
		return Recommendation{}, err
	}
	items := make([]CatalogItem, 0, len(records))
	for _, r := range records {
		items = append(items, catalogItemFromRecord(r))
	}
	return Recommendation{
		Type:        RecLowUsage,
		Title:       "Rarely used catalog items",
		Description: fmt.Sprintf("%d items have not been updated in over six months", len(items)),
		Items:       items,
	}, nil
}
