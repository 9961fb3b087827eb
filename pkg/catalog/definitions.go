package catalog

import "github.com/dukex/consolidation/pkg/models"

// definitions is the fixed template table. It is never mutated; Catalog hands out copies.
func definitions() []models.NodeTemplate {
	return []models.NodeTemplate{
		{
			Type:        models.NodeTypeDataImport,
			Name:        "Trial Balance Import",
			Description: "Loads entity trial balances for the fiscal period into the consolidation ledger",
			Category:    models.CategoryInput,
			DefaultConfiguration: map[string]any{
				"source":         "trial_balance",
				"include_zero":   false,
				"entity_filter":  []any{},
				"fiscal_period":  "",
				"mapping_set_id": "",
			},
			RequiredFields: []string{"source", "fiscal_period"},
			Schema: object(map[string]any{
				"source":         enumString("Where balances are read from", "trial_balance", "general_ledger", "upload"),
				"fiscal_period":  pattern("Fiscal period in YYYY-MM form", `^[0-9]{4}-(0[1-9]|1[0-2])$`),
				"include_zero":   boolean("Import accounts with zero balance"),
				"entity_filter":  stringList("Entity codes to import; empty imports all"),
				"mapping_set_id": str("Chart of accounts mapping set"),
			}),
		},
		{
			Type:        models.NodeTypeOpeningBalance,
			Name:        "Opening Balances",
			Description: "Carries closing balances of the prior fiscal year into the current one",
			Category:    models.CategoryInput,
			DefaultConfiguration: map[string]any{
				"prior_fiscal_year": nil,
				"carry_forward":     true,
			},
			RequiredFields: []string{"prior_fiscal_year"},
			Schema: object(map[string]any{
				"prior_fiscal_year": integer("Fiscal year whose closing balances are used", 1900, 2999),
				"carry_forward":     boolean("Carry forward balance sheet accounts only"),
			}),
		},
		{
			Type:        models.NodeTypeOwnershipStructure,
			Name:        "Ownership Structure",
			Description: "Resolves direct and indirect ownership percentages from the group structure",
			Category:    models.CategoryEquity,
			DefaultConfiguration: map[string]any{
				"parent_entity":    "",
				"as_of_date":       "",
				"include_indirect": true,
			},
			RequiredFields: []string{"parent_entity"},
			Schema: object(map[string]any{
				"parent_entity":    str("Ultimate parent entity code"),
				"as_of_date":       str("Ownership effective date (defaults to period end)"),
				"include_indirect": boolean("Multiply through intermediate holdings"),
			}),
		},
		{
			Type:        models.NodeTypeFXTranslation,
			Name:        "FX Translation",
			Description: "Translates subsidiary balances from functional to reporting currency",
			Category:    models.CategoryTranslation,
			DefaultConfiguration: map[string]any{
				"translation_method": "",
				"reporting_currency": "",
				"rate_source":        "central_bank",
				"cta_account":        "",
				"round_to":           2,
			},
			RequiredFields: []string{"translation_method", "reporting_currency"},
			Schema: object(map[string]any{
				"translation_method": enumString("Translation method", "current_rate", "temporal", "average_rate"),
				"reporting_currency": pattern("ISO 4217 reporting currency", `^[A-Z]{3}$`),
				"rate_source":        enumString("Where exchange rates come from", "central_bank", "manual", "market_feed"),
				"cta_account":        str("Cumulative translation adjustment account"),
				"round_to":           integer("Decimal places for translated amounts", 0, 6),
			}),
		},
		{
			Type:        models.NodeTypeCurrencyRevaluation,
			Name:        "Currency Revaluation",
			Description: "Revalues monetary items held in foreign currency at closing rates",
			Category:    models.CategoryTranslation,
			DefaultConfiguration: map[string]any{
				"revaluation_date":    "",
				"gain_loss_account":   "",
				"monetary_items_only": true,
			},
			RequiredFields: []string{"gain_loss_account"},
			Schema: object(map[string]any{
				"revaluation_date":    str("Rate date (defaults to period end)"),
				"gain_loss_account":   str("Unrealised FX gain/loss account"),
				"monetary_items_only": boolean("Skip non-monetary balances"),
			}),
		},
		{
			Type:        models.NodeTypeIntercompanyElimination,
			Name:        "Intercompany Elimination",
			Description: "Matches and eliminates intercompany receivables, payables, revenue and expense",
			Category:    models.CategoryElimination,
			DefaultConfiguration: map[string]any{
				"elimination_scope":   "all",
				"elimination_account": "",
				"matching_tolerance":  0.01,
				"post_differences":    true,
			},
			RequiredFields: []string{"elimination_scope", "elimination_account"},
			Schema: object(map[string]any{
				"elimination_scope":   enumString("Which intercompany pairs to eliminate", "all", "balance_sheet", "profit_and_loss"),
				"elimination_account": str("Account receiving elimination differences"),
				"matching_tolerance":  number("Absolute tolerance for matching counterparts", 0),
				"post_differences":    boolean("Post unmatched differences to the elimination account"),
			}),
		},
		{
			Type:        models.NodeTypeInvestmentElimination,
			Name:        "Investment Elimination",
			Description: "Eliminates the parent's investment against subsidiary equity at acquisition",
			Category:    models.CategoryElimination,
			DefaultConfiguration: map[string]any{
				"investment_account": "",
				"equity_accounts":    []any{},
			},
			RequiredFields: []string{"investment_account"},
			Schema: object(map[string]any{
				"investment_account": str("Parent investment account"),
				"equity_accounts":    stringList("Subsidiary equity accounts to eliminate"),
			}),
		},
		{
			Type:        models.NodeTypeEquityMethod,
			Name:        "Equity Method",
			Description: "Recognises the share of associate profit using the equity method",
			Category:    models.CategoryEquity,
			DefaultConfiguration: map[string]any{
				"investee_entity":      "",
				"ownership_percentage": nil,
			},
			RequiredFields: []string{"investee_entity"},
			Schema: object(map[string]any{
				"investee_entity":      str("Associate entity code"),
				"ownership_percentage": numberRange("Override ownership percentage", 0, 100),
			}),
		},
		{
			Type:        models.NodeTypeProfitCalculation,
			Name:        "Profit Calculation",
			Description: "Computes entity and group profit for allocation",
			Category:    models.CategoryAllocation,
			DefaultConfiguration: map[string]any{
				"profit_measure": "net_income",
				"exclude_oci":    true,
			},
			RequiredFields: []string{"profit_measure"},
			Schema: object(map[string]any{
				"profit_measure": enumString("Profit measure", "net_income", "ebit", "ebitda"),
				"exclude_oci":    boolean("Exclude other comprehensive income"),
			}),
		},
		{
			Type:        models.NodeTypeNCIAllocation,
			Name:        "NCI Allocation",
			Description: "Allocates profit and equity to non-controlling interests",
			Category:    models.CategoryAllocation,
			DefaultConfiguration: map[string]any{
				"nci_percentage_source": "ownership_table",
				"manual_percentage":     nil,
				"nci_equity_account":    "",
				"nci_profit_account":    "",
			},
			RequiredFields: []string{"nci_percentage_source", "nci_equity_account"},
			Schema: object(map[string]any{
				"nci_percentage_source": enumString("Where NCI percentages come from", "ownership_table", "manual"),
				"manual_percentage":     numberRange("NCI percentage when source is manual", 0, 100),
				"nci_equity_account":    str("NCI equity account"),
				"nci_profit_account":    str("NCI share of profit account"),
			}),
		},
		{
			Type:        models.NodeTypeGoodwillCalculation,
			Name:        "Goodwill Calculation",
			Description: "Measures goodwill on acquisition and tests for impairment",
			Category:    models.CategoryAdjustment,
			DefaultConfiguration: map[string]any{
				"acquisition_entity": "",
				"measurement_basis":  "proportionate",
				"impairment_test":    false,
			},
			RequiredFields: []string{"acquisition_entity"},
			Schema: object(map[string]any{
				"acquisition_entity": str("Acquired entity code"),
				"measurement_basis":  enumString("NCI measurement basis", "proportionate", "full_fair_value"),
				"impairment_test":    boolean("Run impairment test this period"),
			}),
		},
		{
			Type:        models.NodeTypeFairValueAdjustment,
			Name:        "Fair Value Adjustment",
			Description: "Applies purchase price allocation fair value step-ups and their amortisation",
			Category:    models.CategoryAdjustment,
			DefaultConfiguration: map[string]any{
				"adjustment_basis":    "",
				"amortization_method": "straight_line",
			},
			RequiredFields: []string{"adjustment_basis"},
			Schema: object(map[string]any{
				"adjustment_basis":    enumString("Basis of the adjustment", "purchase_price_allocation", "revaluation"),
				"amortization_method": enumString("Amortisation of step-ups", "straight_line", "none"),
			}),
		},
		{
			Type:        models.NodeTypeDeferredTax,
			Name:        "Deferred Tax",
			Description: "Computes deferred tax on consolidation adjustments",
			Category:    models.CategoryTax,
			DefaultConfiguration: map[string]any{
				"tax_rate":             nil,
				"jurisdiction":         "",
				"deferred_tax_account": "",
			},
			RequiredFields: []string{"tax_rate", "jurisdiction"},
			Schema: object(map[string]any{
				"tax_rate":             numberRange("Applicable tax rate in percent", 0, 100),
				"jurisdiction":         str("Tax jurisdiction code"),
				"deferred_tax_account": str("Deferred tax liability/asset account"),
			}),
		},
		{
			Type:        models.NodeTypeRetainedEarningsRollforward,
			Name:        "Retained Earnings Rollforward",
			Description: "Rolls opening retained earnings forward with profit, dividends and adjustments",
			Category:    models.CategoryEquity,
			DefaultConfiguration: map[string]any{
				"opening_balance_account": "",
				"closing_balance_account": "",
				"dividends_account":       "",
			},
			RequiredFields: []string{"opening_balance_account", "closing_balance_account"},
			Schema: object(map[string]any{
				"opening_balance_account": str("Opening retained earnings account"),
				"closing_balance_account": str("Closing retained earnings account"),
				"dividends_account":       str("Dividends declared account"),
			}),
		},
		{
			Type:        models.NodeTypeConsolidationJournal,
			Name:        "Consolidation Journal",
			Description: "Posts recurring or manual consolidation journal entries",
			Category:    models.CategoryAdjustment,
			DefaultConfiguration: map[string]any{
				"journal_type": "",
				"auto_reverse": false,
				"entries":      []any{},
			},
			RequiredFields: []string{"journal_type"},
			Schema: object(map[string]any{
				"journal_type": enumString("Journal type", "recurring", "manual", "reclassification"),
				"auto_reverse": boolean("Reverse in the next period"),
				"entries":      array("Journal lines"),
			}),
		},
		{
			Type:        models.NodeTypeValidation,
			Name:        "Validation",
			Description: "Checks the consolidated ledger against balance and matching rules",
			Category:    models.CategoryControl,
			DefaultConfiguration: map[string]any{
				"rule_set":  "balance_check",
				"tolerance": 0.0,
				"blocking":  true,
			},
			RequiredFields: []string{"rule_set"},
			Schema: object(map[string]any{
				"rule_set":  enumString("Rules to apply", "balance_check", "intercompany_match", "equity_reconciliation", "full"),
				"tolerance": number("Allowed absolute difference", 0),
				"blocking":  boolean("Report violations as errors rather than warnings"),
			}),
		},
		{
			Type:        models.NodeTypeCashFlowStatement,
			Name:        "Cash Flow Statement",
			Description: "Builds the consolidated cash flow statement",
			Category:    models.CategoryOutput,
			DefaultConfiguration: map[string]any{
				"method": "indirect",
			},
			RequiredFields: []string{"method"},
			Schema: object(map[string]any{
				"method": enumString("Presentation method", "direct", "indirect"),
			}),
		},
		{
			Type:        models.NodeTypeFinancialStatement,
			Name:        "Financial Statement",
			Description: "Produces a consolidated financial statement from the final ledger",
			Category:    models.CategoryOutput,
			DefaultConfiguration: map[string]any{
				"statement_type": "",
				"format":         "json",
				"comparative":    true,
			},
			RequiredFields: []string{"statement_type"},
			Schema: object(map[string]any{
				"statement_type": enumString("Statement", "balance_sheet", "income_statement", "equity_statement", "comprehensive_income"),
				"format":         enumString("Output format", "json", "pdf", "xlsx"),
				"comparative":    boolean("Include prior year comparatives"),
			}),
		},
	}
}

func object(properties map[string]any) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": properties,
	}
}

// Optional fields default to null, so every scalar property accepts null as well.

func str(description string) map[string]any {
	return map[string]any{"type": []any{"string", "null"}, "description": description}
}

func pattern(description, expr string) map[string]any {
	return map[string]any{
		"description": description,
		"anyOf": []any{
			map[string]any{"type": "string", "pattern": expr},
			map[string]any{"type": "string", "maxLength": 0},
			map[string]any{"type": "null"},
		},
	}
}

func enumString(description string, values ...string) map[string]any {
	enum := make([]any, 0, len(values)+2)
	for _, v := range values {
		enum = append(enum, v)
	}

	enum = append(enum, "", nil)

	return map[string]any{"description": description, "enum": enum}
}

func boolean(description string) map[string]any {
	return map[string]any{"type": []any{"boolean", "null"}, "description": description}
}

func integer(description string, minimum, maximum int) map[string]any {
	return map[string]any{
		"type":        []any{"integer", "null"},
		"description": description,
		"minimum":     minimum,
		"maximum":     maximum,
	}
}

func number(description string, minimum float64) map[string]any {
	return map[string]any{"type": []any{"number", "null"}, "description": description, "minimum": minimum}
}

func numberRange(description string, minimum, maximum float64) map[string]any {
	return map[string]any{
		"type":        []any{"number", "null"},
		"description": description,
		"minimum":     minimum,
		"maximum":     maximum,
	}
}

func array(description string) map[string]any {
	return map[string]any{"type": []any{"array", "null"}, "description": description}
}

func stringList(description string) map[string]any {
	return map[string]any{
		"type":        []any{"array", "null"},
		"description": description,
		"items":       map[string]any{"type": "string"},
	}
}
