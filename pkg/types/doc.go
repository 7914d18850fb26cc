// Package types provides shared type definitions for the codegraph index.
//
// This package defines the domain types used across the indexing
// components: entities, edges, skeletons, and the result shapes the
// query operations return.
//
// # Core Types
//
// Entity represents a code construct (function, method, class, module)
// extracted from source via structural parsing:
//
//	entity := &types.Entity{
//	    ID:        types.EntityID(types.KindFunction, "app/db.py", "connect"),
//	    Kind:      types.KindFunction,
//	    Name:      "connect",
//	    FilePath:  "app/db.py",
//	    Signature: "def connect(url: str) -> Connection:",
//	}
//
// Edge represents a directed, typed relationship between two entities.
// Five relations are supported: calls, mutates-state, reads-config,
// propagates-error, and inherits-from.
//
// # Pseudo Entities
//
// Targets that are referenced but never defined (attributes, config
// keys, external exception types) are materialized as pseudo entities
// so every edge endpoint resolves. Pseudo entities carry only an ID,
// kind, and name. Config pseudo IDs namespace their source kind in
// place of a file path, e.g. "config:env:DATABASE_URL".
//
// # Validation
//
// Entity and Edge implement Validate methods enforcing the structural
// rules the store relies on:
//
//	if err := entity.Validate(); err != nil {
//	    return err
//	}
package types
