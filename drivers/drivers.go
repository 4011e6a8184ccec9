// Package drivers registers every built-in driver. Importing it for
// side effects populates the locator registry.
package drivers

import (
	_ "github.com/dbcrossbar/dbcrossbar/drivers/bigquery"
	_ "github.com/dbcrossbar/dbcrossbar/drivers/csv"
	_ "github.com/dbcrossbar/dbcrossbar/drivers/gs"
	_ "github.com/dbcrossbar/dbcrossbar/drivers/postgres"
	_ "github.com/dbcrossbar/dbcrossbar/drivers/redshift"
	_ "github.com/dbcrossbar/dbcrossbar/drivers/s3"
	_ "github.com/dbcrossbar/dbcrossbar/drivers/schemafiles"
	_ "github.com/dbcrossbar/dbcrossbar/drivers/trino"
)
