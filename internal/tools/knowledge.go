package tools

import (
	"context"
	"log/slog"

	"github.com/ThrownLemon/snow-mcp/internal/audit"
	"github.com/ThrownLemon/snow-mcp/internal/servicenow"
)

const (
	knowledgeBaseTable     = "kb_knowledge_base"
	knowledgeCategoryTable = "kb_category"
	knowledgeArticleTable  = "kb_knowledge"
)

// KnowledgeTools manages knowledge bases, categories, and articles.
type KnowledgeTools struct {
	client  servicenow.Client
	auditor *audit.Publisher
	logger  *slog.Logger
}

func NewKnowledgeTools(client servicenow.Client, auditor *audit.Publisher, logger *slog.Logger) *KnowledgeTools {
	return &KnowledgeTools{
		client:  client,
		auditor: auditor,
		logger:  logger.With("component", "knowledge-tools"),
	}
}

type CreateKnowledgeBaseParams struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Owner       string `json:"owner,omitempty"`
	Managers    string `json:"managers,omitempty"`
}

type KnowledgeBaseResult struct {
	Result
	KnowledgeBaseID string `json:"kb_id,omitempty"`
}

func (t *KnowledgeTools) CreateKnowledgeBase(ctx context.Context, p CreateKnowledgeBaseParams) KnowledgeBaseResult {
	if p.Title == "" {
		return KnowledgeBaseResult{Result: fail("title is required")}
	}

	rec := servicenow.Record{"title": p.Title}
	setIf(rec, "description", p.Description)
	setIf(rec, "owner", p.Owner)
	setIf(rec, "kb_managers", p.Managers)

	created, err := t.client.CreateRecord(ctx, knowledgeBaseTable, rec)
	if err != nil {
		return KnowledgeBaseResult{Result: fail("Failed to create knowledge base: %v", err)}
	}

	sysID := created.String("sys_id")
	t.auditor.Emit(audit.Event{
		Action: audit.ActionCreate,
		Table:  knowledgeBaseTable,
		SysID:  sysID,
		Tool:   "create_knowledge_base",
	})
	return KnowledgeBaseResult{Result: ok("Knowledge base created successfully"), KnowledgeBaseID: sysID}
}

type ListKnowledgeBasesParams struct {
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
	Active *bool  `json:"active,omitempty"`
	Query  string `json:"query,omitempty"`
}

type KnowledgeBase struct {
	SysID       string `json:"sys_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Owner       string `json:"owner,omitempty"`
	Active      bool   `json:"active"`
}

type ListKnowledgeBasesResult struct {
	Result
	KnowledgeBases []KnowledgeBase `json:"knowledge_bases"`
	Total          int             `json:"total"`
	Limit          int             `json:"limit"`
	Offset         int             `json:"offset"`
}

func (t *KnowledgeTools) ListKnowledgeBases(ctx context.Context, p ListKnowledgeBasesParams) ListKnowledgeBasesResult {
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

	records, total, err := t.client.ListRecords(ctx, knowledgeBaseTable, servicenow.ListOptions{
		Query:  qb.Build(),
		Limit:  limit,
		Offset: p.Offset,
	})
	if err != nil {
		return ListKnowledgeBasesResult{Result: fail("Failed to list knowledge bases: %v", err)}
	}

	bases := make([]KnowledgeBase, 0, len(records))
	for _, r := range records {
		bases = append(bases, KnowledgeBase{
			SysID:       r.String("sys_id"),
			Title:       r.String("title"),
			Description: r.String("description"),
			Owner:       r.DisplayString("owner"),
			Active:      r.Bool("active"),
		})
	}
	if total < 0 {
		total = len(bases)
	}
	return ListKnowledgeBasesResult{
		Result:         ok("Retrieved %d knowledge bases", len(bases)),
		KnowledgeBases: bases,
		Total:          total,
		Limit:          limit,
		Offset:         p.Offset,
	}
}

type CreateKnowledgeCategoryParams struct {
	Title          string `json:"title"`
	KnowledgeBase  string `json:"knowledge_base"`
	Description    string `json:"description,omitempty"`
	ParentCategory string `json:"parent_category,omitempty"`
	Active         *bool  `json:"active,omitempty"`
}

type KnowledgeCategoryResult struct {
	Result
	CategoryID string `json:"category_id,omitempty"`
}

func (t *KnowledgeTools) CreateCategory(ctx context.Context, p CreateKnowledgeCategoryParams) KnowledgeCategoryResult {
	if p.Title == "" {
		return KnowledgeCategoryResult{Result: fail("title is required")}
	}
	if p.KnowledgeBase == "" {
		return KnowledgeCategoryResult{Result: fail("knowledge_base is required")}
	}

	kbID, err := servicenow.ResolveSysID(ctx, t.client, knowledgeBaseTable, p.KnowledgeBase, "title")
	if err != nil {
		return KnowledgeCategoryResult{Result: resolveFail(err, "Knowledge base", p.KnowledgeBase)}
	}

	active := true
	if p.Active != nil {
		active = *p.Active
	}
	rec := servicenow.Record{
		"label":             p.Title,
		"kb_knowledge_base": kbID,
		"active":            boolString(active),
	}
	setIf(rec, "description", p.Description)
	if p.ParentCategory != "" {
		parentID, err := servicenow.ResolveSysID(ctx, t.client, knowledgeCategoryTable, p.ParentCategory, "label")
		if err != nil {
			return KnowledgeCategoryResult{Result: resolveFail(err, "Knowledge category", p.ParentCategory)}
		}
		rec["parent_id"] = parentID
	}

	created, err := t.client.CreateRecord(ctx, knowledgeCategoryTable, rec)
	if err != nil {
		return KnowledgeCategoryResult{Result: fail("Failed to create category: %v", err)}
	}

	sysID := created.String("sys_id")
	t.auditor.Emit(audit.Event{
		Action: audit.ActionCreate,
		Table:  knowledgeCategoryTable,
		SysID:  sysID,
		Tool:   "create_category",
	})
	return KnowledgeCategoryResult{Result: ok("Category created successfully"), CategoryID: sysID}
}

type ListKnowledgeCategoriesParams struct {
	Limit          int    `json:"limit,omitempty"`
	Offset         int    `json:"offset,omitempty"`
	KnowledgeBase  string `json:"knowledge_base,omitempty"`
	ParentCategory string `json:"parent_category,omitempty"`
	Active         *bool  `json:"active,omitempty"`
	Query          string `json:"query,omitempty"`
}

type KnowledgeCategory struct {
	SysID         string `json:"sys_id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	KnowledgeBase string `json:"knowledge_base,omitempty"`
	Parent        string `json:"parent,omitempty"`
	Active        bool   `json:"active"`
}

type ListKnowledgeCategoriesResult struct {
	Result
	Categories []KnowledgeCategory `json:"categories"`
	Total      int                 `json:"total"`
	Limit      int                 `json:"limit"`
	Offset     int                 `json:"offset"`
}

func (t *KnowledgeTools) ListCategories(ctx context.Context, p ListKnowledgeCategoriesParams) ListKnowledgeCategoriesResult {
	limit := clampLimit(p.Limit, 10, 100)

	qb := servicenow.NewQueryBuilder()
	active := true
	if p.Active != nil {
		active = *p.Active
	}
	qb.WhereEquals("active", boolString(active))
	if p.KnowledgeBase != "" {
		kbID, err := servicenow.ResolveSysID(ctx, t.client, knowledgeBaseTable, p.KnowledgeBase, "title")
		if err != nil {
			return ListKnowledgeCategoriesResult{Result: resolveFail(err, "Knowledge base", p.KnowledgeBase)}
		}
		qb.WhereEquals("kb_knowledge_base", kbID)
	}
	if p.ParentCategory != "" {
		qb.WhereEquals("parent_id", p.ParentCategory)
	}
	if p.Query != "" {
		qb.WhereLike("label", p.Query)
	}

	records, total, err := t.client.ListRecords(ctx, knowledgeCategoryTable, servicenow.ListOptions{
		Query:  qb.Build(),
		Limit:  limit,
		Offset: p.Offset,
	})
	if err != nil {
		return ListKnowledgeCategoriesResult{Result: fail("Failed to list categories: %v", err)}
	}

	categories := make([]KnowledgeCategory, 0, len(records))
	for _, r := range records {
		categories = append(categories, KnowledgeCategory{
			SysID:         r.String("sys_id"),
			Title:         r.String("label"),
			Description:   r.String("description"),
			KnowledgeBase: r.DisplayString("kb_knowledge_base"),
			Parent:        r.DisplayString("parent_id"),
			Active:        r.Bool("active"),
		})
	}
	if total < 0 {
		total = len(categories)
	}
	return ListKnowledgeCategoriesResult{
		Result:     ok("Retrieved %d categories", len(categories)),
		Categories: categories,
		Total:      total,
		Limit:      limit,
		Offset:     p.Offset,
	}
}

type CreateArticleParams struct {
	Title         string `json:"title"`
	Text          string `json:"text"`
	KnowledgeBase string `json:"knowledge_base"`
	Category      string `json:"category,omitempty"`
	Keywords      string `json:"keywords,omitempty"`
	ArticleType   string `json:"article_type,omitempty"`
}

type ArticleResult struct {
	Result
	ArticleID     string `json:"article_id,omitempty"`
	ArticleNumber string `json:"article_number,omitempty"`
}

func (t *KnowledgeTools) CreateArticle(ctx context.Context, p CreateArticleParams) ArticleResult {
	if p.Title == "" || p.Text == "" {
		return ArticleResult{Result: fail("title and text are required")}
	}
	if p.KnowledgeBase == "" {
		return ArticleResult{Result: fail("knowledge_base is required")}
	}

	kbID, err := servicenow.ResolveSysID(ctx, t.client, knowledgeBaseTable, p.KnowledgeBase, "title")
	if err != nil {
		return ArticleResult{Result: resolveFail(err, "Knowledge base", p.KnowledgeBase)}
	}

	articleType := p.ArticleType
	if articleType == "" {
		articleType = "text"
	}
	rec := servicenow.Record{
		"short_description": p.Title,
		"text":              p.Text,
		"kb_knowledge_base": kbID,
		"article_type":      articleType,
	}
	setIf(rec, "meta", p.Keywords)
	if p.Category != "" {
		catID, err := servicenow.ResolveSysID(ctx, t.client, knowledgeCategoryTable, p.Category, "label")
		if err != nil {
			return ArticleResult{Result: resolveFail(err, "Knowledge category", p.Category)}
		}
		rec["kb_category"] = catID
	}

	created, err := t.client.CreateRecord(ctx, knowledgeArticleTable, rec)
	if err != nil {
		return ArticleResult{Result: fail("Failed to create article: %v", err)}
	}

	sysID := created.String("sys_id")
	t.auditor.Emit(audit.Event{
		Action: audit.ActionCreate,
		Table:  knowledgeArticleTable,
		SysID:  sysID,
		Tool:   "create_article",
	})
	return ArticleResult{
		Result:        ok("Article created successfully"),
		ArticleID:     sysID,
		ArticleNumber: created.String("number"),
	}
}

type UpdateArticleParams struct {
	ArticleID string `json:"article_id"`
	Title     string `json:"title,omitempty"`
	Text      string `json:"text,omitempty"`
	Category  string `json:"category,omitempty"`
	Keywords  string `json:"keywords,omitempty"`
}

func (t *KnowledgeTools) UpdateArticle(ctx context.Context, p UpdateArticleParams) ArticleResult {
	if p.ArticleID == "" {
		return ArticleResult{Result: fail("article_id is required")}
	}

	rec := servicenow.Record{}
	setIf(rec, "short_description", p.Title)
	setIf(rec, "text", p.Text)
	setIf(rec, "meta", p.Keywords)
	if p.Category != "" {
		catID, err := servicenow.ResolveSysID(ctx, t.client, knowledgeCategoryTable, p.Category, "label")
		if err != nil {
			return ArticleResult{Result: resolveFail(err, "Knowledge category", p.Category)}
		}
		rec["kb_category"] = catID
	}
	if len(rec) == 0 {
		return ArticleResult{Result: fail("No fields to update")}
	}

	sysID, err := servicenow.ResolveSysID(ctx, t.client, knowledgeArticleTable, p.ArticleID, "number")
	if err != nil {
		return ArticleResult{Result: resolveFail(err, "Article", p.ArticleID)}
	}

	updated, err := t.client.UpdateRecord(ctx, knowledgeArticleTable, sysID, rec)
	if err != nil {
		return ArticleResult{Result: fail("Failed to update article: %v", err)}
	}

	t.auditor.Emit(audit.Event{
		Action: audit.ActionUpdate,
		Table:  knowledgeArticleTable,
		SysID:  sysID,
		Tool:   "update_article",
	})
	return ArticleResult{
		Result:        ok("Article updated successfully"),
		ArticleID:     sysID,
		ArticleNumber: updated.String("number"),
	}
}

type PublishArticleParams struct {
	ArticleID     string `json:"article_id"`
	WorkflowState string `json:"workflow_state,omitempty"`
}

func (t *KnowledgeTools) PublishArticle(ctx context.Context, p PublishArticleParams) ArticleResult {
	if p.ArticleID == "" {
		return ArticleResult{Result: fail("article_id is required")}
	}

	state := p.WorkflowState
	if state == "" {
		state = "published"
	}

	sysID, err := servicenow.ResolveSysID(ctx, t.client, knowledgeArticleTable, p.ArticleID, "number")
	if err != nil {
		return ArticleResult{Result: resolveFail(err, "Article", p.ArticleID)}
	}

	updated, err := t.client.UpdateRecord(ctx, knowledgeArticleTable, sysID, servicenow.Record{"workflow_state": state})
	if err != nil {
		return ArticleResult{Result: fail("Failed to publish article: %v", err)}
	}

	t.auditor.Emit(audit.Event{
		Action: audit.ActionUpdate,
		Table:  knowledgeArticleTable,
		SysID:  sysID,
		Tool:   "publish_article",
	})
	return ArticleResult{
		Result:        ok("Article published successfully"),
		ArticleID:     sysID,
		ArticleNumber: updated.String("number"),
	}
}

type ListArticlesParams struct {
	Limit         int    `json:"limit,omitempty"`
	Offset        int    `json:"offset,omitempty"`
	KnowledgeBase string `json:"knowledge_base,omitempty"`
	Category      string `json:"category,omitempty"`
	WorkflowState string `json:"workflow_state,omitempty"`
	Query         string `json:"query,omitempty"`
}

type Article struct {
	SysID         string `json:"sys_id"`
	Number        string `json:"number"`
	Title         string `json:"title"`
	KnowledgeBase string `json:"knowledge_base,omitempty"`
	Category      string `json:"category,omitempty"`
	WorkflowState string `json:"workflow_state,omitempty"`
	UpdatedOn     string `json:"sys_updated_on,omitempty"`
}

type ListArticlesResult struct {
	Result
	Articles []Article `json:"articles"`
	Total    int       `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}

func (t *KnowledgeTools) ListArticles(ctx context.Context, p ListArticlesParams) ListArticlesResult {
	limit := clampLimit(p.Limit, 10, 100)

	qb := servicenow.NewQueryBuilder()
	if p.KnowledgeBase != "" {
		kbID, err := servicenow.ResolveSysID(ctx, t.client, knowledgeBaseTable, p.KnowledgeBase, "title")
		if err != nil {
			return ListArticlesResult{Result: resolveFail(err, "Knowledge base", p.KnowledgeBase)}
		}
		qb.WhereEquals("kb_knowledge_base", kbID)
	}
	if p.Category != "" {
		qb.WhereEquals("kb_category", p.Category)
	}
	if p.WorkflowState != "" {
		qb.WhereEquals("workflow_state", p.WorkflowState)
	}
	if p.Query != "" {
		qb.WhereLike("short_description", p.Query).OrWhereLike("text", p.Query)
	}

	records, total, err := t.client.ListRecords(ctx, knowledgeArticleTable, servicenow.ListOptions{
		Query:        qb.Build(),
		Limit:        limit,
		Offset:       p.Offset,
		DisplayValue: "all",
		OrderBy:      "sys_updated_on",
		Descending:   true,
	})
	if err != nil {
		return ListArticlesResult{Result: fail("Failed to list articles: %v", err)}
	}

	articles := make([]Article, 0, len(records))
	for _, r := range records {
		articles = append(articles, Article{
			SysID:         r.String("sys_id"),
			Number:        r.String("number"),
			Title:         r.String("short_description"),
			KnowledgeBase: r.DisplayString("kb_knowledge_base"),
			Category:      r.DisplayString("kb_category"),
			WorkflowState: r.String("workflow_state"),
			UpdatedOn:     r.String("sys_updated_on"),
		})
	}
	if total < 0 {
		total = len(articles)
	}
	return ListArticlesResult{
		Result:   ok("Retrieved %d articles", len(articles)),
		Articles: articles,
		Total:    total,
		Limit:    limit,
		Offset:   p.Offset,
	}
}

type GetArticleParams struct {
	ArticleID string `json:"article_id"`
}

type ArticleDetail struct {
	Article
	Text string `json:"text,omitempty"`
}

type GetArticleResult struct {
	Result
	Article *ArticleDetail `json:"article,omitempty"`
}

func (t *KnowledgeTools) GetArticle(ctx context.Context, p GetArticleParams) GetArticleResult {
	if p.ArticleID == "" {
		return GetArticleResult{Result: fail("article_id is required")}
	}

	rec, err := servicenow.ResolveRecord(ctx, t.client, knowledgeArticleTable, p.ArticleID, "number")
	if err != nil {
		return GetArticleResult{Result: resolveFail(err, "Article", p.ArticleID)}
	}

	detail := &ArticleDetail{
		Article: Article{
			SysID:         rec.String("sys_id"),
			Number:        rec.String("number"),
			Title:         rec.String("short_description"),
			KnowledgeBase: rec.DisplayString("kb_knowledge_base"),
			Category:      rec.DisplayString("kb_category"),
			WorkflowState: rec.String("workflow_state"),
			UpdatedOn:     rec.String("sys_updated_on"),
		},
		Text: rec.String("text"),
	}
	return GetArticleResult{
		Result:  ok("Retrieved article: %s", detail.Number),
		Article: detail,
	}
}
