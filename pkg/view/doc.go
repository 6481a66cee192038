// Package view maps request paths to targets and renders them.
//
// A request path is cleaned and turned into a target ("blog/" becomes
// "blog/index.html"). Targets with a hidden segment or without the URI
// extension are refused with 404. The target's context handler is processed,
// and the template mirroring the target ("blog/post1.gohtml" for
// "blog/post1.html") is executed with the scope data at the top level and
// the META, KWARGS, SCOPE and G keys. When no such template exists the
// directory's pattern template ("blog/_pattern_.gohtml") is used instead.
//
// Views are built through a Registry keyed by the view class name found in
// the configuration.
package view
