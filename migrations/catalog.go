// Package migrations is the ordered catalog of schema migrations for the registration
// store. Append new migrations to All with an id later than every existing one; never
// edit a migration that has shipped.
package migrations

import (
	"embed"
	"fmt"

	migrator "github.com/Maksumys/schema-migrator"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

//go:embed sql
var views embed.FS

// seedNamespace derives stable ids for lookup rows from their codes.
var seedNamespace = uuid.MustParse("6f1c2a7e-4b8d-4c3e-9a51-0d2e7b9f8c14")

func readView(file string) string {
	bytes, err := views.ReadFile("sql/" + file)
	if err != nil {
		panic(err)
	}
	return string(bytes)
}

func seedID(table, code string) string {
	return uuid.NewSHA1(seedNamespace, []byte(table+"/"+code)).String()
}

func lookupRows(table string, titles [][2]string) []map[string]interface{} {
	rows := make([]map[string]interface{}, 0, len(titles))
	for _, t := range titles {
		rows = append(rows, map[string]interface{}{
			"id":    seedID(table, t[0]),
			"code":  t[0],
			"title": t[1],
		})
	}
	return rows
}

func lookupTable(name string) migrator.CreateTable {
	return migrator.CreateTable{
		Table: name,
		Columns: []migrator.Column{
			{Name: "id", Definition: "VARCHAR(36) PRIMARY KEY"},
			{Name: "code", Definition: "VARCHAR(32) NOT NULL"},
			{Name: "title", Definition: "VARCHAR(255) NOT NULL"},
		},
		Constraints: []string{fmt.Sprintf("CONSTRAINT uq_%s_code UNIQUE (code)", name)},
	}
}

// All returns every migration of the registration store.
func All() []migrator.Migration {
	viewV1 := readView("v_company_licenses_v1.sql")
	viewV2 := readView("v_company_licenses_v2.sql")

	return []migrator.Migration{
		{
			ID:   "20240115093000_create_lookup_tables",
			Name: "create vehicle and license type lookups",
			Up: []migrator.Step{
				lookupTable("vehicle_types"),
				lookupTable("license_types"),
			},
			Down: []migrator.Step{
				migrator.DropTable{Table: "license_types"},
				migrator.DropTable{Table: "vehicle_types"},
			},
		},
		{
			ID:   "20240115094500_seed_lookup_rows",
			Name: "seed vehicle and license types",
			Up: []migrator.Step{
				migrator.InsertRows{
					Table:      "vehicle_types",
					KeyColumns: []string{"code"},
					Rows: lookupRows("vehicle_types", [][2]string{
						{"car", "Passenger car"},
						{"truck", "Truck"},
						{"bus", "Bus"},
						{"trailer", "Trailer"},
					}),
				},
				migrator.InsertRows{
					Table:      "license_types",
					KeyColumns: []string{"code"},
					Rows: lookupRows("license_types", [][2]string{
						{"passenger", "Passenger transport"},
						{"freight", "Freight transport"},
						{"taxi", "Taxi"},
					}),
				},
			},
			// rows may already be referenced by registrations
			DownPolicy: migrator.DownRetain,
		},
		{
			ID:   "20240202110000_create_companies",
			Name: "create companies",
			Up: []migrator.Step{
				migrator.CreateTable{
					Table: "companies",
					Columns: []migrator.Column{
						{Name: "id", Definition: "VARCHAR(36) PRIMARY KEY"},
						{Name: "name", Definition: "VARCHAR(255) NOT NULL"},
						{Name: "tax_number", Definition: "VARCHAR(32) NOT NULL"},
						{Name: "created_at", Definition: "TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP"},
					},
				},
				migrator.CreateIndex{Table: "companies", Name: "ux_companies_tax_number", Columns: []string{"tax_number"}, Unique: true},
			},
			Down: []migrator.Step{
				migrator.DropIndex{Table: "companies", Name: "ux_companies_tax_number"},
				migrator.DropTable{Table: "companies"},
			},
		},
		{
			ID:   "20240305080000_create_company_licenses",
			Name: "create company licenses",
			Up: []migrator.Step{
				migrator.CreateTable{
					Table: "company_licenses",
					Columns: []migrator.Column{
						{Name: "id", Definition: "VARCHAR(36) PRIMARY KEY"},
						{Name: "company_id", Definition: "VARCHAR(36) NOT NULL"},
						{Name: "license_type_id", Definition: "VARCHAR(36) NOT NULL"},
						{Name: "vehicle_type_id", Definition: "VARCHAR(36) NOT NULL"},
						{Name: "license_number", Definition: "VARCHAR(64) NOT NULL"},
						{Name: "issued_on", Definition: "DATE NOT NULL"},
						{Name: "expires_on", Definition: "DATE"},
					},
					Constraints: []string{
						"CONSTRAINT fk_company_licenses_company FOREIGN KEY (company_id) REFERENCES companies (id) ON DELETE CASCADE",
						"CONSTRAINT fk_company_licenses_license_type FOREIGN KEY (license_type_id) REFERENCES license_types (id)",
						"CONSTRAINT fk_company_licenses_vehicle_type FOREIGN KEY (vehicle_type_id) REFERENCES vehicle_types (id)",
					},
				},
				migrator.CreateIndex{Table: "company_licenses", Name: "ix_company_licenses_company", Columns: []string{"company_id"}},
				migrator.CreateIndex{Table: "company_licenses", Name: "ux_company_licenses_number", Columns: []string{"license_type_id", "license_number"}, Unique: true},
			},
			Down: []migrator.Step{
				migrator.DropIndex{Table: "company_licenses", Name: "ux_company_licenses_number"},
				migrator.DropIndex{Table: "company_licenses", Name: "ix_company_licenses_company"},
				migrator.DropTable{Table: "company_licenses"},
			},
		},
		{
			ID:   "20240410150000_add_license_status",
			Name: "add license status",
			Up: []migrator.Step{
				migrator.AddColumn{
					Table:  "company_licenses",
					Column: migrator.Column{Name: "status", Definition: "VARCHAR(16) NOT NULL DEFAULT 'active'"},
				},
				migrator.RawStatement{SQL: `UPDATE company_licenses SET status = 'expired' WHERE expires_on < CURRENT_DATE`},
			},
			Down: []migrator.Step{
				migrator.DropColumn{Table: "company_licenses", Column: "status"},
			},
		},
		{
			ID:   "20240521120000_company_license_view",
			Name: "create company license view",
			Up:   []migrator.Step{migrator.ReplaceView{Name: "v_company_licenses", Query: viewV1}},
			Down: []migrator.Step{migrator.DropView{Name: "v_company_licenses"}},
		},
		{
			ID:   "20240612090000_company_license_view_status",
			Name: "expose license status in company license view",
			Up:   []migrator.Step{migrator.ReplaceView{Name: "v_company_licenses", Query: viewV2}},
			Down: []migrator.Step{migrator.ReplaceView{Name: "v_company_licenses", Query: viewV1}},
		},
		{
			ID:   "20240701100000_vehicle_types_legacy_code",
			Name: "add legacy code to vehicle types",
			Up: []migrator.Step{
				migrator.RawStatement{
					SQL:    `ALTER TABLE vehicle_types ADD COLUMN legacy_code VARCHAR(32)`,
					Unless: migrator.ColumnExists{Table: "vehicle_types", Column: "legacy_code"},
				},
			},
			Down: []migrator.Step{
				migrator.DropColumn{Table: "vehicle_types", Column: "legacy_code"},
			},
		},
		migrator.MigrationLite{
			ID:   "20240801083000_create_registry_audit",
			Name: "create registry audit log",
			Up: `CREATE TABLE registry_audit (
				id          VARCHAR(36) PRIMARY KEY,
				entity      VARCHAR(64) NOT NULL,
				entity_id   VARCHAR(36) NOT NULL,
				action      VARCHAR(16) NOT NULL,
				recorded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
			Down:   `DROP TABLE registry_audit`,
			Unless: migrator.TableExists{Table: "registry_audit"},
		}.Migration(),
		{
			ID:   "20240815120000_trim_company_names",
			Name: "trim company names",
			Up: []migrator.Step{
				migrator.Exec{Name: "trim company names", Fn: trimCompanyNames},
			},
			DownPolicy: migrator.DownRetain,
		},
	}
}

// Source returns the validated catalog.
func Source() (*migrator.Source, error) {
	return migrator.NewSource(All()...)
}

func trimCompanyNames(tx *gorm.DB) error {
	return tx.Table("companies").
		Where("name <> TRIM(name)").
		Update("name", gorm.Expr("TRIM(name)")).Error
}
