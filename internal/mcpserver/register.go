package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func registerTools(s *server.MCPServer, ts *Toolset) {
	registerIncidentTools(s, ts)
	registerCatalogTools(s, ts)
	registerChangesetTools(s, ts)
	registerKnowledgeTools(s, ts)
	registerScriptIncludeTools(s, ts)
	registerTableTools(s, ts)
	registerWorkflowTools(s, ts)
	registerNaturalLanguageTools(s, ts)
}

func stringItems() mcp.PropertyOption {
	return mcp.Items(map[string]any{"type": "string"})
}

func registerIncidentTools(s *server.MCPServer, ts *Toolset) {
	addTool(s, mcp.NewTool("create_incident",
		mcp.WithDescription("Create a new incident"),
		mcp.WithString("short_description", mcp.Required(), mcp.Description("Brief summary of the incident")),
		mcp.WithString("description", mcp.Description("Detailed description")),
		mcp.WithString("caller_id", mcp.Description("User reporting the incident")),
		mcp.WithString("category", mcp.Description("Incident category")),
		mcp.WithString("subcategory", mcp.Description("Incident subcategory")),
		mcp.WithString("priority", mcp.Description("Priority (1-5)")),
		mcp.WithString("impact", mcp.Description("Impact (1-3)")),
		mcp.WithString("urgency", mcp.Description("Urgency (1-3)")),
		mcp.WithString("assigned_to", mcp.Description("Assignee")),
		mcp.WithString("assignment_group", mcp.Description("Assignment group")),
	), ts.Incidents.CreateIncident)

	addTool(s, mcp.NewTool("update_incident",
		mcp.WithDescription("Update fields on an existing incident"),
		mcp.WithString("incident_id", mcp.Required(), mcp.Description("Incident sys_id or number")),
		mcp.WithString("short_description"),
		mcp.WithString("description"),
		mcp.WithString("state", mcp.Description("State value, e.g. 2 for In Progress")),
		mcp.WithString("category"),
		mcp.WithString("subcategory"),
		mcp.WithString("priority"),
		mcp.WithString("impact"),
		mcp.WithString("urgency"),
		mcp.WithString("assigned_to"),
		mcp.WithString("assignment_group"),
		mcp.WithString("work_notes", mcp.Description("Internal work note to append")),
		mcp.WithString("close_notes"),
		mcp.WithString("close_code"),
	), ts.Incidents.UpdateIncident)

	addTool(s, mcp.NewTool("add_comment",
		mcp.WithDescription("Add a comment or work note to an incident"),
		mcp.WithString("incident_id", mcp.Required(), mcp.Description("Incident sys_id or number")),
		mcp.WithString("comment", mcp.Required(), mcp.Description("Comment text")),
		mcp.WithBoolean("is_work_note", mcp.Description("Record as an internal work note instead of a customer-visible comment")),
	), ts.Incidents.AddComment)

	addTool(s, mcp.NewTool("resolve_incident",
		mcp.WithDescription("Resolve an incident with a close code and notes"),
		mcp.WithString("incident_id", mcp.Required(), mcp.Description("Incident sys_id or number")),
		mcp.WithString("resolution_code", mcp.Required(), mcp.Description("Close code, e.g. Solved (Permanently)")),
		mcp.WithString("resolution_notes", mcp.Required(), mcp.Description("How the incident was resolved")),
	), ts.Incidents.ResolveIncident)

	addTool(s, mcp.NewTool("list_incidents",
		mcp.WithDescription("List incidents with optional filters"),
		mcp.WithNumber("limit", mcp.Description("Maximum incidents to return (default 10)")),
		mcp.WithNumber("offset", mcp.Description("Pagination offset")),
		mcp.WithString("state", mcp.Description("Filter by state value")),
		mcp.WithString("assigned_to", mcp.Description("Filter by assignee")),
		mcp.WithString("category", mcp.Description("Filter by category")),
		mcp.WithString("query", mcp.Description("Additional encoded query clause")),
	), ts.Incidents.ListIncidents)
}

func registerCatalogTools(s *server.MCPServer, ts *Toolset) {
	addTool(s, mcp.NewTool("list_catalog_items",
		mcp.WithDescription("List service catalog items"),
		mcp.WithNumber("limit"),
		mcp.WithNumber("offset"),
		mcp.WithString("category", mcp.Description("Filter by category sys_id")),
		mcp.WithString("query", mcp.Description("Free-text filter on name and short description")),
		mcp.WithBoolean("active", mcp.Description("Filter by active flag (default true)")),
	), ts.Catalog.ListCatalogItems)

	addTool(s, mcp.NewTool("get_catalog_item",
		mcp.WithDescription("Get a catalog item with its form variables"),
		mcp.WithString("item_id", mcp.Required(), mcp.Description("Item sys_id or name")),
	), ts.Catalog.GetCatalogItem)

	addTool(s, mcp.NewTool("update_catalog_item",
		mcp.WithDescription("Update fields on a catalog item"),
		mcp.WithString("item_id", mcp.Required(), mcp.Description("Item sys_id or name")),
		mcp.WithString("name"),
		mcp.WithString("short_description"),
		mcp.WithString("description"),
		mcp.WithString("category"),
		mcp.WithString("price"),
		mcp.WithBoolean("active"),
		mcp.WithString("order"),
	), ts.Catalog.UpdateCatalogItem)

	addTool(s, mcp.NewTool("list_catalog_categories",
		mcp.WithDescription("List service catalog categories"),
		mcp.WithNumber("limit"),
		mcp.WithNumber("offset"),
		mcp.WithString("query", mcp.Description("Free-text filter on title and description")),
		mcp.WithBoolean("active"),
	), ts.Catalog.ListCatalogCategories)

	addTool(s, mcp.NewTool("create_catalog_category",
		mcp.WithDescription("Create a catalog category"),
		mcp.WithString("title", mcp.Required()),
		mcp.WithString("description"),
		mcp.WithString("parent", mcp.Description("Parent category sys_id")),
		mcp.WithString("icon"),
		mcp.WithBoolean("active"),
		mcp.WithString("order"),
	), ts.Catalog.CreateCatalogCategory)

	addTool(s, mcp.NewTool("update_catalog_category",
		mcp.WithDescription("Update a catalog category"),
		mcp.WithString("category_id", mcp.Required(), mcp.Description("Category sys_id or title")),
		mcp.WithString("title"),
		mcp.WithString("description"),
		mcp.WithString("parent"),
		mcp.WithString("icon"),
		mcp.WithBoolean("active"),
		mcp.WithString("order"),
	), ts.Catalog.UpdateCatalogCategory)

	addTool(s, mcp.NewTool("move_catalog_items",
		mcp.WithDescription("Move catalog items into another category"),
		mcp.WithArray("item_ids", mcp.Required(), mcp.Description("Item sys_ids or names"), stringItems()),
		mcp.WithString("target_category_id", mcp.Required(), mcp.Description("Destination category sys_id or title")),
	), ts.Catalog.MoveCatalogItems)

	addTool(s, mcp.NewTool("get_optimization_recommendations",
		mcp.WithDescription("Analyze the catalog for cleanup opportunities"),
		mcp.WithArray("recommendation_types", mcp.Description("Subset of: inactive_items, poor_descriptions, low_usage"), stringItems()),
		mcp.WithString("category_id", mcp.Description("Restrict analysis to one category")),
	), ts.Catalog.GetOptimizationRecommendations)
}

func registerChangesetTools(s *server.MCPServer, ts *Toolset) {
	addTool(s, mcp.NewTool("list_changesets",
		mcp.WithDescription("List update sets"),
		mcp.WithNumber("limit"),
		mcp.WithNumber("offset"),
		mcp.WithString("state", mcp.Description("Filter by state, e.g. in progress, complete, published")),
		mcp.WithString("application", mcp.Description("Filter by application scope")),
		mcp.WithString("developer", mcp.Description("Filter by creating user")),
		mcp.WithString("timeframe", mcp.Description("today, week, or month")),
		mcp.WithString("query", mcp.Description("Additional encoded query clause")),
	), ts.Changesets.ListChangesets)

	addTool(s, mcp.NewTool("get_changeset_details",
		mcp.WithDescription("Get an update set and its captured changes"),
		mcp.WithString("changeset_id", mcp.Required(), mcp.Description("Update set sys_id or name")),
	), ts.Changesets.GetChangesetDetails)

	addTool(s, mcp.NewTool("create_changeset",
		mcp.WithDescription("Create a new update set"),
		mcp.WithString("name", mcp.Required()),
		mcp.WithString("application"),
		mcp.WithString("developer"),
		mcp.WithString("description"),
	), ts.Changesets.CreateChangeset)

	addTool(s, mcp.NewTool("update_changeset",
		mcp.WithDescription("Update fields on an update set"),
		mcp.WithString("changeset_id", mcp.Required(), mcp.Description("Update set sys_id or name")),
		mcp.WithString("name"),
		mcp.WithString("state"),
		mcp.WithString("application"),
		mcp.WithString("description"),
	), ts.Changesets.UpdateChangeset)

	addTool(s, mcp.NewTool("commit_changeset",
		mcp.WithDescription("Mark an update set complete"),
		mcp.WithString("changeset_id", mcp.Required(), mcp.Description("Update set sys_id or name")),
		mcp.WithString("commit_message"),
	), ts.Changesets.CommitChangeset)

	addTool(s, mcp.NewTool("publish_changeset",
		mcp.WithDescription("Publish a completed update set"),
		mcp.WithString("changeset_id", mcp.Required(), mcp.Description("Update set sys_id or name")),
		mcp.WithString("publish_notes"),
	), ts.Changesets.PublishChangeset)

	addTool(s, mcp.NewTool("add_file_to_changeset",
		mcp.WithDescription("Attach a file payload to an update set"),
		mcp.WithString("changeset_id", mcp.Required(), mcp.Description("Update set sys_id or name")),
		mcp.WithString("file_name", mcp.Required()),
		mcp.WithString("file_content", mcp.Required()),
	), ts.Changesets.AddFileToChangeset)
}

func registerKnowledgeTools(s *server.MCPServer, ts *Toolset) {
	addTool(s, mcp.NewTool("create_knowledge_base",
		mcp.WithDescription("Create a knowledge base"),
		mcp.WithString("title", mcp.Required()),
		mcp.WithString("description"),
		mcp.WithString("owner"),
		mcp.WithString("managers"),
	), ts.Knowledge.CreateKnowledgeBase)

	addTool(s, mcp.NewTool("list_knowledge_bases",
		mcp.WithDescription("List knowledge bases"),
		mcp.WithNumber("limit"),
		mcp.WithNumber("offset"),
		mcp.WithBoolean("active"),
		mcp.WithString("query", mcp.Description("Free-text filter on title and description")),
	), ts.Knowledge.ListKnowledgeBases)

	addTool(s, mcp.NewTool("create_category",
		mcp.WithDescription("Create a knowledge category"),
		mcp.WithString("title", mcp.Required()),
		mcp.WithString("knowledge_base", mcp.Required(), mcp.Description("Knowledge base sys_id or title")),
		mcp.WithString("description"),
		mcp.WithString("parent_category", mcp.Description("Parent category sys_id or label")),
		mcp.WithBoolean("active"),
	), ts.Knowledge.CreateCategory)

	addTool(s, mcp.NewTool("list_categories",
		mcp.WithDescription("List knowledge categories"),
		mcp.WithNumber("limit"),
		mcp.WithNumber("offset"),
		mcp.WithString("knowledge_base", mcp.Description("Knowledge base sys_id or title")),
		mcp.WithString("parent_category"),
		mcp.WithBoolean("active"),
		mcp.WithString("query"),
	), ts.Knowledge.ListCategories)

	addTool(s, mcp.NewTool("create_article",
		mcp.WithDescription("Create a knowledge article"),
		mcp.WithString("title", mcp.Required()),
		mcp.WithString("text", mcp.Required(), mcp.Description("Article body (HTML or wiki text)")),
		mcp.WithString("knowledge_base", mcp.Required(), mcp.Description("Knowledge base sys_id or title")),
		mcp.WithString("category", mcp.Description("Category sys_id or label")),
		mcp.WithString("keywords"),
		mcp.WithString("article_type", mcp.Description("Defaults to text")),
	), ts.Knowledge.CreateArticle)

	addTool(s, mcp.NewTool("update_article",
		mcp.WithDescription("Update a knowledge article"),
		mcp.WithString("article_id", mcp.Required(), mcp.Description("Article sys_id or KB number")),
		mcp.WithString("title"),
		mcp.WithString("text"),
		mcp.WithString("category"),
		mcp.WithString("keywords"),
	), ts.Knowledge.UpdateArticle)

	addTool(s, mcp.NewTool("publish_article",
		mcp.WithDescription("Publish a knowledge article"),
		mcp.WithString("article_id", mcp.Required(), mcp.Description("Article sys_id or KB number")),
		mcp.WithString("workflow_state", mcp.Description("Target state (default published)")),
	), ts.Knowledge.PublishArticle)

	addTool(s, mcp.NewTool("list_articles",
		mcp.WithDescription("List knowledge articles"),
		mcp.WithNumber("limit"),
		mcp.WithNumber("offset"),
		mcp.WithString("knowledge_base", mcp.Description("Knowledge base sys_id or title")),
		mcp.WithString("category"),
		mcp.WithString("workflow_state"),
		mcp.WithString("query", mcp.Description("Free-text filter on title and body")),
	), ts.Knowledge.ListArticles)

	addTool(s, mcp.NewTool("get_article",
		mcp.WithDescription("Get a knowledge article with its body"),
		mcp.WithString("article_id", mcp.Required(), mcp.Description("Article sys_id or KB number")),
	), ts.Knowledge.GetArticle)
}

func registerScriptIncludeTools(s *server.MCPServer, ts *Toolset) {
	addTool(s, mcp.NewTool("list_script_includes",
		mcp.WithDescription("List script includes"),
		mcp.WithNumber("limit"),
		mcp.WithNumber("offset"),
		mcp.WithBoolean("active"),
		mcp.WithBoolean("client_callable"),
		mcp.WithString("query", mcp.Description("Free-text filter on name")),
	), ts.ScriptIncludes.ListScriptIncludes)

	addTool(s, mcp.NewTool("get_script_include",
		mcp.WithDescription("Get a script include with its source"),
		mcp.WithString("script_include_id", mcp.Required(), mcp.Description("Script include sys_id or name")),
	), ts.ScriptIncludes.GetScriptInclude)

	addTool(s, mcp.NewTool("create_script_include",
		mcp.WithDescription("Create a script include"),
		mcp.WithString("name", mcp.Required()),
		mcp.WithString("script", mcp.Required(), mcp.Description("JavaScript source")),
		mcp.WithString("description"),
		mcp.WithBoolean("active"),
		mcp.WithBoolean("client_callable"),
		mcp.WithString("access", mcp.Description("public or package_private")),
	), ts.ScriptIncludes.CreateScriptInclude)

	addTool(s, mcp.NewTool("update_script_include",
		mcp.WithDescription("Update a script include"),
		mcp.WithString("script_include_id", mcp.Required(), mcp.Description("Script include sys_id or name")),
		mcp.WithString("script"),
		mcp.WithString("description"),
		mcp.WithBoolean("active"),
		mcp.WithBoolean("client_callable"),
		mcp.WithString("access"),
	), ts.ScriptIncludes.UpdateScriptInclude)

	addTool(s, mcp.NewTool("delete_script_include",
		mcp.WithDescription("Delete a script include"),
		mcp.WithString("script_include_id", mcp.Required(), mcp.Description("Script include sys_id or name")),
	), ts.ScriptIncludes.DeleteScriptInclude)
}

func registerTableTools(s *server.MCPServer, ts *Toolset) {
	addTool(s, mcp.NewTool("list_tables",
		mcp.WithDescription("List tables defined in the instance"),
		mcp.WithString("name_filter", mcp.Description("Substring match on table name")),
		mcp.WithBoolean("include_system", mcp.Description("Include sys_ and temporary tables")),
		mcp.WithNumber("limit"),
		mcp.WithNumber("offset"),
	), ts.Tables.ListTables)

	addTool(s, mcp.NewTool("get_records",
		mcp.WithDescription("Query records from any table"),
		mcp.WithString("table", mcp.Required(), mcp.Description("Table name, e.g. incident")),
		mcp.WithString("query", mcp.Description("Encoded query string")),
		mcp.WithArray("fields", mcp.Description("Fields to return"), stringItems()),
		mcp.WithNumber("limit", mcp.Description("1-1000, default 10")),
		mcp.WithNumber("offset"),
		mcp.WithString("order_by", mcp.Description("Sort field")),
		mcp.WithString("order_direction", mcp.Description("asc or desc")),
	), ts.Tables.GetRecords)

	addTool(s, mcp.NewTool("get_record",
		mcp.WithDescription("Get one record by sys_id"),
		mcp.WithString("table", mcp.Required()),
		mcp.WithString("sys_id", mcp.Required()),
		mcp.WithArray("fields", mcp.Description("Fields to return"), stringItems()),
	), ts.Tables.GetRecord)

	addTool(s, mcp.NewTool("get_table_schema",
		mcp.WithDescription("Describe the columns of a table"),
		mcp.WithString("table", mcp.Required()),
		mcp.WithBoolean("include_all_fields", mcp.Description("Include sys_ bookkeeping columns")),
	), ts.Tables.GetTableSchema)

	addTool(s, mcp.NewTool("list_table_schemas",
		mcp.WithDescription("List schema summaries for tables matching a filter"),
		mcp.WithString("name_filter", mcp.Description("Substring match on table name")),
		mcp.WithNumber("limit", mcp.Description("Maximum tables to summarize (default 10, max 50)")),
	), ts.Tables.ListTableSchemas)
}

func registerWorkflowTools(s *server.MCPServer, ts *Toolset) {
	addTool(s, mcp.NewTool("list_workflows",
		mcp.WithDescription("List workflows"),
		mcp.WithNumber("limit"),
		mcp.WithNumber("offset"),
		mcp.WithBoolean("active"),
		mcp.WithString("name", mcp.Description("Substring match on workflow name")),
		mcp.WithString("query", mcp.Description("Additional encoded query clause")),
	), ts.Workflows.ListWorkflows)

	addTool(s, mcp.NewTool("get_workflow_details",
		mcp.WithDescription("Get a workflow with version and activity counts"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow sys_id or name")),
	), ts.Workflows.GetWorkflowDetails)

	addTool(s, mcp.NewTool("list_workflow_versions",
		mcp.WithDescription("List the versions of a workflow"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow sys_id or name")),
		mcp.WithNumber("limit"),
		mcp.WithNumber("offset"),
	), ts.Workflows.ListWorkflowVersions)

	addTool(s, mcp.NewTool("get_workflow_activities",
		mcp.WithDescription("List the activities of a workflow version in execution order"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow sys_id or name")),
		mcp.WithString("version_id", mcp.Description("Version sys_id (defaults to the latest version)")),
	), ts.Workflows.GetWorkflowActivities)

	addTool(s, mcp.NewTool("create_workflow",
		mcp.WithDescription("Create a workflow with an initial version"),
		mcp.WithString("name", mcp.Required()),
		mcp.WithString("description"),
		mcp.WithString("table", mcp.Description("Table the workflow runs on")),
	), ts.Workflows.CreateWorkflow)

	addTool(s, mcp.NewTool("update_workflow",
		mcp.WithDescription("Update workflow fields"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow sys_id or name")),
		mcp.WithString("name"),
		mcp.WithString("description"),
		mcp.WithString("table"),
	), ts.Workflows.UpdateWorkflow)

	addTool(s, mcp.NewTool("activate_workflow",
		mcp.WithDescription("Activate a workflow"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow sys_id or name")),
	), ts.Workflows.ActivateWorkflow)

	addTool(s, mcp.NewTool("deactivate_workflow",
		mcp.WithDescription("Deactivate a workflow"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow sys_id or name")),
	), ts.Workflows.DeactivateWorkflow)

	addTool(s, mcp.NewTool("add_workflow_activity",
		mcp.WithDescription("Append an activity to a workflow version"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow sys_id or name")),
		mcp.WithString("name", mcp.Required()),
		mcp.WithString("description"),
		mcp.WithString("activity_definition"),
		mcp.WithString("version_id", mcp.Description("Version sys_id (defaults to the latest version)")),
	), ts.Workflows.AddWorkflowActivity)

	addTool(s, mcp.NewTool("update_workflow_activity",
		mcp.WithDescription("Update a workflow activity"),
		mcp.WithString("activity_id", mcp.Required(), mcp.Description("Activity sys_id")),
		mcp.WithString("name"),
		mcp.WithString("description"),
		mcp.WithString("order"),
	), ts.Workflows.UpdateWorkflowActivity)

	addTool(s, mcp.NewTool("delete_workflow_activity",
		mcp.WithDescription("Delete a workflow activity"),
		mcp.WithString("activity_id", mcp.Required(), mcp.Description("Activity sys_id")),
	), ts.Workflows.DeleteWorkflowActivity)

	addTool(s, mcp.NewTool("reorder_workflow_activities",
		mcp.WithDescription("Rewrite activity ordering to match the given sequence"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow sys_id or name")),
		mcp.WithArray("activity_ids", mcp.Required(), mcp.Description("Activity sys_ids in the desired order"), stringItems()),
		mcp.WithString("version_id"),
	), ts.Workflows.ReorderWorkflowActivities)
}

func registerNaturalLanguageTools(s *server.MCPServer, ts *Toolset) {
	addTool(s, mcp.NewTool("natural_language_search",
		mcp.WithDescription("Search records using a free-text phrase"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search phrase, e.g. find all email problems")),
		mcp.WithString("table", mcp.Description("Table to search (default incident)")),
		mcp.WithNumber("limit"),
	), ts.NaturalLanguage.NaturalLanguageSearch)

	addTool(s, mcp.NewTool("natural_language_update",
		mcp.WithDescription("Apply an imperative sentence as a record update (table defaults to incident)"),
		mcp.WithString("command", mcp.Required(), mcp.Description("e.g. Update incident INC0010001 saying I'm working on it")),
	), ts.NaturalLanguage.NaturalLanguageUpdate)

	addTool(s, mcp.NewTool("update_script",
		mcp.WithDescription("Replace the body of a named server-side script"),
		mcp.WithString("script_type", mcp.Required(), mcp.Description("business_rule, script_include, ui_action, or ui_script")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Script name")),
		mcp.WithString("script", mcp.Required(), mcp.Description("New JavaScript source")),
		mcp.WithString("description"),
		mcp.WithBoolean("active"),
	), ts.NaturalLanguage.UpdateScript)
}
