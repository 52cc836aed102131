// Package tal renders TAL/METAL page templates: XML or HTML documents whose
// elements carry tal: and metal: attributes that drive conditional output,
// repetition, content replacement, attribute rewriting and macros.
//
// # Quick Start
//
//	tmpl, err := tal.PrepareString(`<ul xmlns:tal="http://xml.zope.org/namespaces/tal">
//	  <li tal:repeat="item here/items" tal:content="item">x</li>
//	</ul>`)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	out, err := tmpl.Render(map[string]any{"items": []string{"a", "b"}}, nil)
//
// # Directives
//
// Directives in the tal namespace are applied to an element in this order:
// define, condition, repeat, then per repetition content (or replace),
// attributes and omit-tag. tal:evaluate runs first and only for its side
// effects. In the metal namespace, define-macro marks a reusable subtree,
// use-macro renders one in place of the element, fill-slot supplies caller
// content and define-slot marks where that content goes.
//
// # Expressions
//
// Expressions are paths by default: here/items, item/name, user/getName(),
// list[0], 'literal', 42, 3.5F, true. Alternatives are separated by '|'
// and the first one that is not null is used. Prefixes select other forms:
//
//	string:Hello ${user/name}, you owe $$${amount}
//	exists:here/optional
//	not:here/items/isEmpty()
//	code:total = price * quantity
//
// code: expressions are HCL. Assignments store their result in the
// environment so later expressions can read it.
//
// The repeat variable exposes the active loops: repeat/item/number,
// repeat/item/even, repeat/item/letter, repeat/item/roman and so on.
//
// # Errors
//
// Expression errors inside an element are logged and the element is
// skipped, so one bad expression does not abort the document. Set
// Config.StrictMode to make the first such error fail the render instead.
// Structural problems such as unknown directives and unresolved macros
// always abort.
package tal
