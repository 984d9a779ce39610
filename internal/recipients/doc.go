// Package recipients turns an uploaded CSV file into a recipient list.
//
// The first row is a header. The name column may be spelled "name", "Name"
// or "NAME" and the address column "email", "Email" or "EMAIL". Rows whose
// address has no "@" are dropped.
package recipients
