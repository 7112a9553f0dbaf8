// Package repository provides a generic CRUD engine over database/sql
// prepared statements. The engine owns the statement lifecycle, parameter
// binding order, generated-key propagation and the error policy; a Mapper
// supplies the SQL text and the row mapping for one entity type.
package repository
